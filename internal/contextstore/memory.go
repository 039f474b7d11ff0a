package contextstore

import (
	"context"
	"sync"

	"github.com/converge-ai/support-platform/internal/model"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]model.Turn // keyed by tenantID + "/" + conversationID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]model.Turn)}
}

func key(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

// Append appends a turn, assigning the next per-conversation sequence.
func (s *MemoryStore) Append(ctx context.Context, turn *model.Turn) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(turn.TenantID, turn.ConversationID)
	seq := uint64(len(s.turns[k]) + 1)

	stored := *turn
	stored.Sequence = seq
	s.turns[k] = append(s.turns[k], stored)

	turn.Sequence = seq
	return seq, nil
}

// ReadLastN returns the last n turns in chronological order.
func (s *MemoryStore) ReadLastN(ctx context.Context, tenantID, conversationID string, n int) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.turns[key(tenantID, conversationID)]
	if n <= 0 || len(log) == 0 {
		return nil, nil
	}

	start := len(log) - n
	if start < 0 {
		start = 0
	}

	out := make([]model.Turn, len(log)-start)
	copy(out, log[start:])
	return out, nil
}
