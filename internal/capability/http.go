package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/pkg/logger"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

const maxResponseBytes = 1 << 20 // 1MB

// HTTPInvoker invokes capabilities over their configured HTTP endpoints.
// Parameters are sent as a JSON body; the response is either a Result JSON
// object or raw text treated as output.
type HTTPInvoker struct {
	client *http.Client
	logger *logger.Logger
}

// NewHTTPInvoker creates an invoker with a shared HTTP client. Per-call
// deadlines come from the caller's context, so no client timeout is set.
func NewHTTPInvoker(log *logger.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		client: &http.Client{},
		logger: log,
	}
}

// Invoke performs one invocation attempt.
func (inv *HTTPInvoker) Invoke(ctx context.Context, def *model.CapabilityDefinition, params map[string]any) (*Result, error) {
	start := time.Now()

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	method := def.Endpoint.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, def.Endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range def.Endpoint.Headers {
		req.Header.Set(k, v)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		metrics.RecordCapabilityInvocation(def.Name, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("capability %s invocation failed: %w", def.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordCapabilityInvocation(def.Name, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("capability %s response read failed: %w", def.Name, err)
	}

	// 422 is the explicit cannot-help contract: the capability understood
	// the request but declines it.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		metrics.RecordCapabilityInvocation(def.Name, "cannot_help", time.Since(start).Seconds())
		return &Result{CannotHelp: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordCapabilityInvocation(def.Name, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("capability %s returned status %d", def.Name, resp.StatusCode)
	}

	result := &Result{}
	if err := json.Unmarshal(data, result); err != nil || result.Output == "" && !result.CannotHelp {
		// Not a Result envelope; treat the raw body as output.
		result = &Result{Output: string(data)}
	}

	inv.logger.Debug("capability invoked",
		zap.String("capability", def.Name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	metrics.RecordCapabilityInvocation(def.Name, "success", time.Since(start).Seconds())

	return result, nil
}
