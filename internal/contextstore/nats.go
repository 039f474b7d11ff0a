package contextstore

import (
	"context"
	"fmt"

	"github.com/converge-ai/support-platform/internal/model"
	natsclient "github.com/converge-ai/support-platform/internal/nats"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

// JetStreamStore is the production Store backed by NATS JetStream. Turn
// ordering is given by the stream sequence assigned on publish.
type JetStreamStore struct {
	streams *natsclient.StreamManager
}

// NewJetStreamStore creates a Store over an existing stream manager.
func NewJetStreamStore(streams *natsclient.StreamManager) *JetStreamStore {
	return &JetStreamStore{streams: streams}
}

// Append publishes the turn and records its stream sequence.
func (s *JetStreamStore) Append(ctx context.Context, turn *model.Turn) (uint64, error) {
	seq, err := s.streams.PublishTurn(ctx, turn)
	if err != nil {
		return 0, fmt.Errorf("failed to append turn: %w", err)
	}
	turn.Sequence = seq

	metrics.TurnsAppendedTotal.WithLabelValues(turn.TenantID, string(turn.Role)).Inc()

	return seq, nil
}

// ReadLastN returns up to the last n turns in chronological order.
func (s *JetStreamStore) ReadLastN(ctx context.Context, tenantID, conversationID string, n int) ([]model.Turn, error) {
	turns, err := s.streams.GetLastTurns(ctx, tenantID, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return turns, nil
}
