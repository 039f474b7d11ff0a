package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/converge-ai/support-platform/internal/model"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// fetchPageSize bounds each consumer fetch while scanning a
	// conversation's turn log.
	fetchPageSize = 100
)

// StreamManager handles JetStream stream operations. The stream is the
// append-only turn log: the stream sequence is the sole ordering authority
// for turns within a conversation.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	// Create stream
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,     // 1 year
		MaxBytes:    100 * 1024 * 1024 * 1024, // 100GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "All conversation turns and escalation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// TurnSubject returns the subject for a turn.
func TurnSubject(tenantID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.turn.%s", SubjectPrefix, tenantID, conversationID, role)
}

// EscalationSubject returns the subject for an escalation event.
func EscalationSubject(tenantID, conversationID string, eventType model.EscalationEventType) string {
	return fmt.Sprintf("%s.%s.%s.escalation.%s", SubjectPrefix, tenantID, conversationID, eventType)
}

// PublishTurn publishes a turn to JetStream and returns its stream sequence.
func (m *StreamManager) PublishTurn(ctx context.Context, turn *model.Turn) (uint64, error) {
	subject := TurnSubject(turn.TenantID, turn.ConversationID, turn.Role)

	data, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish turn: %w", err)
	}

	return ack.Sequence, nil
}

// PublishEscalationEvent publishes an escalation lifecycle event.
func (m *StreamManager) PublishEscalationEvent(ctx context.Context, event *model.EscalationEvent) (uint64, error) {
	subject := EscalationSubject(event.TenantID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal escalation event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish escalation event: %w", err)
	}

	return ack.Sequence, nil
}

// GetLastTurns retrieves up to the last n turns of a conversation in
// chronological order. The scan walks the filtered subject from the start
// and keeps a tail window; conversation logs are bounded by retention so the
// walk stays cheap.
func (m *StreamManager) GetLastTurns(ctx context.Context, tenantID, conversationID string, n int) ([]model.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	js := m.client.JetStream()

	filterSubject := fmt.Sprintf("%s.%s.%s.turn.>", SubjectPrefix, tenantID, conversationID)

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var tail []model.Turn

	for {
		batch, err := consumer.Fetch(fetchPageSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch turns: %w", err)
		}

		fetched := 0
		for msg := range batch.Messages() {
			fetched++

			var turn model.Turn
			if err := json.Unmarshal(msg.Data(), &turn); err != nil {
				continue
			}

			if meta, err := msg.Metadata(); err == nil {
				turn.Sequence = meta.Sequence.Stream
			}

			tail = append(tail, turn)
			if len(tail) > n {
				tail = tail[1:]
			}
		}

		if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}

		if fetched < fetchPageSize {
			break
		}
	}

	return tail, nil
}
