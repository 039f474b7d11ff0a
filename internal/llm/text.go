package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/converge-ai/support-platform/internal/schema"
)

const (
	defaultClassifyTimeout = 10 * time.Second
	defaultExtractTimeout  = 20 * time.Second

	// classifyMaxTokens keeps the classifier constrained to a single label.
	classifyMaxTokens = 16
)

// TextProvider exposes the two text-capability operations the engine
// consumes: single-label classification and schema-shaped extraction. Every
// call carries a bounded timeout.
type TextProvider struct {
	client          Client
	model           string
	classifyTimeout time.Duration
	extractTimeout  time.Duration
}

// TextProviderOption configures a TextProvider.
type TextProviderOption func(*TextProvider)

// WithModel overrides the provider's default model.
func WithModel(model string) TextProviderOption {
	return func(p *TextProvider) { p.model = model }
}

// WithClassifyTimeout bounds classification calls.
func WithClassifyTimeout(d time.Duration) TextProviderOption {
	return func(p *TextProvider) { p.classifyTimeout = d }
}

// WithExtractTimeout bounds extraction calls.
func WithExtractTimeout(d time.Duration) TextProviderOption {
	return func(p *TextProvider) { p.extractTimeout = d }
}

// NewTextProvider wraps a completion client.
func NewTextProvider(client Client, opts ...TextProviderOption) *TextProvider {
	p := &TextProvider{
		client:          client,
		classifyTimeout: defaultClassifyTimeout,
		extractTimeout:  defaultExtractTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify sends a classification prompt and returns the raw single-token
// response. The caller decides whether the token is acceptable.
func (p *TextProvider) Classify(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
	defer cancel()

	resp, err := p.client.Complete(ctx, &CompletionRequest{
		Model: p.model,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt},
		},
		MaxTokens:   classifyMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("classification call failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// Extract asks the model to produce a JSON object matching the schema and
// decodes it. A response that is not a JSON object is an error; validation
// against required/typed fields is the caller's job.
func (p *TextProvider) Extract(ctx context.Context, prompt string, sch schema.InputSchema) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.extractTimeout)
	defer cancel()

	resp, err := p.client.Complete(ctx, &CompletionRequest{
		Model: p.model,
		Messages: []ChatMessage{
			{Role: "system", Content: extractionInstructions(sch)},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	raw := stripCodeFences(resp.Content)

	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("extraction returned malformed object: %w", err)
	}

	return values, nil
}

func extractionInstructions(sch schema.InputSchema) string {
	var b strings.Builder
	b.WriteString("Extract the parameters below from the conversation. ")
	b.WriteString("Respond with ONLY a JSON object. Omit parameters that are not stated; never invent values.\n\nParameters:\n")
	for _, param := range sch.Params {
		req := "optional"
		if param.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", param.Name, param.Type, req, param.Description)
	}
	return b.String()
}

// stripCodeFences unwraps ```json fenced responses some models insist on.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
