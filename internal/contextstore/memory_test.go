package contextstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/model"
)

func appendN(t *testing.T, s *MemoryStore, tenantID, conversationID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := s.Append(context.Background(), &model.Turn{
			TenantID:       tenantID,
			ConversationID: conversationID,
			Role:           model.RoleUser,
			Content:        fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("sequences are monotonic per conversation", func(t *testing.T) {
		s := NewMemoryStore()

		turn := &model.Turn{TenantID: "t1", ConversationID: "c1", Role: model.RoleUser, Content: "one"}
		seq, err := s.Append(ctx, turn)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), seq)
		assert.Equal(t, uint64(1), turn.Sequence)

		seq, err = s.Append(ctx, &model.Turn{TenantID: "t1", ConversationID: "c1", Role: model.RoleHandler, Content: "two"})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), seq)

		// A different conversation starts its own sequence.
		seq, err = s.Append(ctx, &model.Turn{TenantID: "t1", ConversationID: "c2", Role: model.RoleUser, Content: "one"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), seq)
	})

	t.Run("read returns the tail window in order", func(t *testing.T) {
		s := NewMemoryStore()
		appendN(t, s, "t1", "c1", 8)

		turns, err := s.ReadLastN(ctx, "t1", "c1", 5)
		require.NoError(t, err)
		require.Len(t, turns, 5)
		assert.Equal(t, "message 4", turns[0].Content)
		assert.Equal(t, "message 8", turns[4].Content)
		for i := 1; i < len(turns); i++ {
			assert.Greater(t, turns[i].Sequence, turns[i-1].Sequence)
		}
	})

	t.Run("read fewer than requested", func(t *testing.T) {
		s := NewMemoryStore()
		appendN(t, s, "t1", "c1", 2)

		turns, err := s.ReadLastN(ctx, "t1", "c1", 15)
		require.NoError(t, err)
		assert.Len(t, turns, 2)
	})

	t.Run("empty conversation", func(t *testing.T) {
		s := NewMemoryStore()
		turns, err := s.ReadLastN(ctx, "t1", "nope", 5)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		s := NewMemoryStore()
		appendN(t, s, "t1", "c1", 3)

		turns, err := s.ReadLastN(ctx, "t2", "c1", 5)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}
