// Package contextstore provides the append-only per-conversation turn log.
// The store is the sole arbiter of turn ordering; the engine never reorders
// or deduplicates by content, only by sequence.
package contextstore

import (
	"context"

	"github.com/converge-ai/support-platform/internal/model"
)

// Store is the narrow interface the engine consumes.
type Store interface {
	// ReadLastN returns up to the last n turns of a conversation in
	// chronological order, fewer if the history is shorter.
	ReadLastN(ctx context.Context, tenantID, conversationID string, n int) ([]model.Turn, error)

	// Append appends one turn and returns its assigned sequence. Appends
	// are atomic and ordered per conversation.
	Append(ctx context.Context, turn *model.Turn) (uint64, error)
}
