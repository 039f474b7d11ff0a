// Package executor runs a selected handler against a message: it extracts
// parameters, validates them against each capability's declared schema, and
// invokes the first capability that can satisfy the request.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/capability"
	"github.com/converge-ai/support-platform/internal/contextstore"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/internal/schema"
	"github.com/converge-ai/support-platform/pkg/logger"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

const (
	// historyWindow is wider than the router's: handlers need more grounding
	// for multi-turn tasks.
	historyWindow = 15

	// maxIdempotentRetries bounds automatic retries of idempotent reads.
	// Non-idempotent operations are never retried.
	maxIdempotentRetries = 2
)

// ReplyKind tags the executor outcome.
type ReplyKind string

const (
	// ReplyAnswer is a capability-backed answer.
	ReplyAnswer ReplyKind = "answer"
	// ReplyClarification asks the user for missing or invalid parameters.
	ReplyClarification ReplyKind = "clarification"
	// ReplyDegraded is the best-effort reply after a capability failure.
	ReplyDegraded ReplyKind = "degraded"
	// ReplyNeedsEscalation signals that no capability could satisfy the
	// request. The caller surfaces the escalation affordance; the executor
	// never dispatches escalations itself.
	ReplyNeedsEscalation ReplyKind = "needs_escalation"
)

// Reply is the executor's result for one user message.
type Reply struct {
	Kind          ReplyKind `json:"kind"`
	Handler       string    `json:"handler"`
	Capability    string    `json:"capability,omitempty"`
	Text          string    `json:"text,omitempty"`
	MissingFields []string  `json:"missing_fields,omitempty"`
}

// Extractor is the external text-generation capability used for structured
// parameter extraction.
type Extractor interface {
	Extract(ctx context.Context, prompt string, sch schema.InputSchema) (map[string]any, error)
}

// Config bounds external capability calls.
type Config struct {
	CapabilityTimeout time.Duration
	RetryBackoff      time.Duration
}

// Executor executes handlers.
type Executor struct {
	registry  *registry.Registry
	store     contextstore.Store
	extractor Extractor
	invoker   capability.Invoker
	logger    *logger.Logger
	cfg       Config
}

// New creates an Executor.
func New(reg *registry.Registry, store contextstore.Store, ext Extractor, inv capability.Invoker, log *logger.Logger, cfg Config) *Executor {
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = 15 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	return &Executor{
		registry:  reg,
		store:     store,
		extractor: ext,
		invoker:   inv,
		logger:    log,
		cfg:       cfg,
	}
}

// Execute runs handlerName against the message. The handler definition and
// its capability list are read once at the start and never re-read
// mid-request. On registry.ErrHandlerUnavailable nothing is appended to the
// context store and no capability is invoked.
func (e *Executor) Execute(ctx context.Context, conversationID, tenantID, handlerName, message string) (*Reply, error) {
	def, err := e.registry.GetHandler(tenantID, handlerName)
	if err != nil {
		return nil, err
	}

	history, err := e.store.ReadLastN(ctx, tenantID, conversationID, historyWindow)
	if err != nil {
		e.logger.Warn("failed to read execution history",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		history = nil
	}

	if err := e.appendTurn(ctx, conversationID, tenantID, model.RoleUser, message, nil); err != nil {
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	reply := e.runCapabilities(ctx, def, history, message, tenantID)
	reply.Handler = def.Name

	if reply.Kind != ReplyNeedsEscalation {
		if err := e.appendTurn(ctx, conversationID, tenantID, model.RoleHandler, reply.Text, &def.Name); err != nil {
			return nil, fmt.Errorf("failed to record handler turn: %w", err)
		}
	}

	e.logger.Info("handler executed",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", conversationID),
		zap.String("handler", def.Name),
		zap.String("outcome", string(reply.Kind)),
	)
	metrics.HandlerExecutionsTotal.WithLabelValues(tenantID, def.Name, string(reply.Kind)).Inc()

	return reply, nil
}

// runCapabilities walks the priority-ordered capability list. The first
// capability whose extracted parameters validate is invoked. A validation
// failure is remembered (highest-priority one wins) and surfaced as a single
// clarifying question only if nothing downstream could be invoked; when no
// capability produces even a concrete field list, or every invocation answers
// cannot-help, the request needs escalation.
func (e *Executor) runCapabilities(ctx context.Context, def *model.HandlerDefinition, history []model.Turn, message, tenantID string) *Reply {
	prompt := buildExtractionPrompt(def, history, message)

	var clarify *schema.ValidationError
	var clarifyCap string

	for i := range def.Capabilities {
		cap := &def.Capabilities[i]

		params, err := e.extractor.Extract(ctx, prompt, cap.InputSchema)
		if err != nil {
			e.logger.Warn("parameter extraction failed",
				zap.String("capability", cap.Name),
				zap.Error(err),
			)
			continue
		}

		if err := cap.InputSchema.Validate(params); err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) && clarify == nil {
				clarify = verr
				clarifyCap = cap.Name
			}
			continue
		}

		result, err := e.invokeWithRetry(ctx, cap, params)
		if err != nil {
			// Persistent invocation failure degrades to a best-effort
			// reply; the user always gets a response.
			e.logger.Error("capability invocation failed",
				zap.String("tenant_id", tenantID),
				zap.String("capability", cap.Name),
				zap.Error(err),
			)
			return &Reply{
				Kind:       ReplyDegraded,
				Capability: cap.Name,
				Text:       "I couldn't reach the system that answers this right now. Please try again in a moment.",
			}
		}

		if result.CannotHelp {
			continue
		}

		return &Reply{
			Kind:       ReplyAnswer,
			Capability: cap.Name,
			Text:       formatOutput(def.OutputTemplate, result.Output),
		}
	}

	if clarify != nil {
		fields := clarify.Fields()
		return &Reply{
			Kind:          ReplyClarification,
			Capability:    clarifyCap,
			Text:          clarificationText(clarify),
			MissingFields: fields,
		}
	}

	return &Reply{Kind: ReplyNeedsEscalation}
}

// invokeWithRetry applies the bounded timeout per attempt and retries
// idempotent reads at most twice with exponential backoff.
func (e *Executor) invokeWithRetry(ctx context.Context, def *model.CapabilityDefinition, params map[string]any) (*capability.Result, error) {
	attempts := 1
	if def.Idempotent {
		attempts += maxIdempotentRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.RetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CapabilityTimeout)
		result, err := e.invoker.Invoke(callCtx, def, params)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

func (e *Executor) appendTurn(ctx context.Context, conversationID, tenantID string, role model.Role, content string, handler *string) error {
	_, err := e.store.Append(ctx, &model.Turn{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Role:           role,
		Content:        content,
		Handler:        handler,
		CreatedAt:      time.Now(),
	})
	return err
}

func clarificationText(verr *schema.ValidationError) string {
	var parts []string
	if len(verr.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("I still need: %s", strings.Join(verr.Missing, ", ")))
	}
	if len(verr.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("I couldn't understand: %s", strings.Join(verr.Invalid, ", ")))
	}
	return fmt.Sprintf("To help with that, %s. Could you provide this?", strings.Join(parts, " and "))
}

// formatOutput applies the handler's declared output template. An empty
// template passes the raw capability output through.
func formatOutput(template, output string) string {
	if template == "" {
		return output
	}
	return strings.ReplaceAll(template, "{{result}}", output)
}
