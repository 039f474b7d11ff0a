// Package operator tracks human operators and their escalation load. Load
// mutations are serialized per operator so the invariant
// 0 <= current_load <= max_load never breaks under concurrent dispatch.
package operator

import (
	"context"
	"errors"

	"github.com/converge-ai/support-platform/internal/model"
)

var (
	// ErrNotFound is returned for an unknown operator ID.
	ErrNotFound = errors.New("operator not found")

	// ErrSaturated is returned when an increment would exceed max load or
	// the operator is offline. It is an expected outcome during assignment
	// races, not a failure.
	ErrSaturated = errors.New("operator unavailable or at capacity")
)

// Pool is the operator pool interface consumed by the dispatcher.
type Pool interface {
	// ListAvailable returns a tenant's online operators with spare
	// capacity, ordered by current load ascending, then creation time,
	// then operator ID (deterministic selection).
	ListAvailable(ctx context.Context, tenantID string) ([]model.Operator, error)

	// AdjustLoad atomically changes an operator's load by delta with bound
	// checking: an increment past capacity (or onto an offline operator)
	// fails with ErrSaturated; a decrement floors at zero. The returned
	// operator reflects the post-adjustment state.
	AdjustLoad(ctx context.Context, operatorID string, delta int) (*model.Operator, error)

	// SetAvailability flips an operator online or offline.
	SetAvailability(ctx context.Context, operatorID string, online bool) (*model.Operator, error)

	// Get returns one operator.
	Get(ctx context.Context, operatorID string) (*model.Operator, error)
}
