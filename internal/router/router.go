// Package router implements the two-tier intent router. Classification is
// delegated to an external text classifier behind a narrow interface; the
// router itself stays deterministic and degrades to Unclear on any failure.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/contextstore"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/pkg/logger"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

const (
	// historyWindow is the fixed number of prior turns consulted for
	// disambiguation. More turns add classification cost without materially
	// improving accuracy.
	historyWindow = 5

	// Sentinel classifier outputs.
	labelMultiIntent = "MULTI_INTENT"
	labelUnclear     = "UNCLEAR"
)

// DecisionKind tags the closed routing result union.
type DecisionKind string

const (
	DecisionHandler     DecisionKind = "handler"
	DecisionMultiIntent DecisionKind = "multi_intent"
	DecisionUnclear     DecisionKind = "unclear"
)

// Decision is the routing outcome: exactly one handler, multiple detected
// intents, or unclear.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	Handler string       `json:"handler,omitempty"`
}

// Classifier is the external text-classification capability.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Router classifies inbound messages against a tenant's enabled handlers.
type Router struct {
	registry   *registry.Registry
	store      contextstore.Store
	classifier Classifier
	logger     *logger.Logger

	retryBackoff time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithRetryBackoff sets the pause before the single classification retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(r *Router) { r.retryBackoff = d }
}

// New creates a Router.
func New(reg *registry.Registry, store contextstore.Store, classifier Classifier, log *logger.Logger, opts ...Option) *Router {
	r := &Router{
		registry:     reg,
		store:        store,
		classifier:   classifier,
		logger:       log,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies a message into exactly one handler, MultiIntent, or
// Unclear. When explicitHandler is non-empty the classifier is bypassed
// entirely, but tenant enablement is still enforced: a disabled handler
// yields registry.ErrHandlerUnavailable.
func (r *Router) Route(ctx context.Context, conversationID, tenantID, message, explicitHandler string) (Decision, error) {
	if explicitHandler != "" {
		if _, err := r.registry.GetHandler(tenantID, explicitHandler); err != nil {
			return Decision{}, err
		}
		metrics.RouteDecisionsTotal.WithLabelValues(tenantID, "direct").Inc()
		return Decision{Kind: DecisionHandler, Handler: explicitHandler}, nil
	}

	handlers := r.registry.ListEnabledHandlers(tenantID)
	if len(handlers) == 0 {
		r.logger.Warn("no handlers enabled for tenant", zap.String("tenant_id", tenantID))
		metrics.RouteDecisionsTotal.WithLabelValues(tenantID, string(DecisionUnclear)).Inc()
		return Decision{Kind: DecisionUnclear}, nil
	}

	history, err := r.store.ReadLastN(ctx, tenantID, conversationID, historyWindow)
	if err != nil {
		// History is a disambiguation aid, not a requirement.
		r.logger.Warn("failed to read routing history",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		history = nil
	}

	prompt := buildClassificationPrompt(handlers, history, message)

	raw, err := r.classifyWithRetry(ctx, tenantID, prompt)
	if err != nil {
		// Persistent classifier failure degrades to Unclear, never to a
		// caller-visible error.
		r.logger.Warn("classification unavailable, degrading to unclear",
			zap.String("tenant_id", tenantID),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		metrics.RouteDecisionsTotal.WithLabelValues(tenantID, string(DecisionUnclear)).Inc()
		return Decision{Kind: DecisionUnclear}, nil
	}

	decision := r.matchDecision(handlers, raw)

	r.logger.Info("message routed",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", conversationID),
		zap.String("decision", string(decision.Kind)),
		zap.String("handler", decision.Handler),
	)
	metrics.RouteDecisionsTotal.WithLabelValues(tenantID, string(decision.Kind)).Inc()

	return decision, nil
}

// classifyWithRetry performs the classification call with one retry after a
// fixed backoff.
func (r *Router) classifyWithRetry(ctx context.Context, tenantID, prompt string) (string, error) {
	raw, err := r.classifier.Classify(ctx, prompt)
	if err == nil {
		return raw, nil
	}

	metrics.ClassifierRetriesTotal.WithLabelValues(tenantID).Inc()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(r.retryBackoff):
	}

	return r.classifier.Classify(ctx, prompt)
}

// matchDecision accepts only a literal enabled handler name or one of the two
// sentinels. Anything else is Unclear: fail safe, never silently guess.
func (r *Router) matchDecision(handlers []model.HandlerDefinition, raw string) Decision {
	switch raw {
	case labelMultiIntent:
		return Decision{Kind: DecisionMultiIntent}
	case labelUnclear:
		return Decision{Kind: DecisionUnclear}
	}

	for _, h := range handlers {
		if h.Name == raw {
			return Decision{Kind: DecisionHandler, Handler: h.Name}
		}
	}

	return Decision{Kind: DecisionUnclear}
}
