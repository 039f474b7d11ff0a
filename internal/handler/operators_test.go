package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/operator"
	"github.com/converge-ai/support-platform/pkg/logger"
)

func newOperatorTestServer(t *testing.T, callerTenant string) (*chi.Mux, *operator.MemoryPool) {
	t.Helper()

	pool := operator.NewMemoryPool()
	pool.Add(model.Operator{
		ID: "op-1", TenantID: "tenant-a", Name: "Alice",
		Online: true, MaxLoad: 5, CreatedAt: time.Now(),
	})

	oh := NewOperatorHandler(pool, logger.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.TenantIDKey, callerTenant)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/v1/operators/available", oh.ListAvailable)
	r.Get("/api/v1/operators/{id}", oh.Get)
	r.Put("/api/v1/operators/{id}/availability", oh.SetAvailability)
	return r, pool
}

func TestOperatorEndpoints(t *testing.T) {
	t.Run("get own operator", func(t *testing.T) {
		srv, _ := newOperatorTestServer(t, "tenant-a")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/operators/op-1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var op model.Operator
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &op))
		assert.Equal(t, "op-1", op.ID)
	})

	t.Run("foreign tenant cannot read operator", func(t *testing.T) {
		srv, _ := newOperatorTestServer(t, "tenant-b")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/operators/op-1", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("foreign tenant cannot change availability", func(t *testing.T) {
		srv, pool := newOperatorTestServer(t, "tenant-b")

		req := httptest.NewRequest(http.MethodPut, "/api/v1/operators/op-1/availability", strings.NewReader(`{"online":false}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		// The operator stays in tenant-a's assignment pool.
		op, err := pool.Get(context.Background(), "op-1")
		require.NoError(t, err)
		assert.True(t, op.Online)
	})

	t.Run("own tenant can change availability", func(t *testing.T) {
		srv, pool := newOperatorTestServer(t, "tenant-a")

		req := httptest.NewRequest(http.MethodPut, "/api/v1/operators/op-1/availability", strings.NewReader(`{"online":false}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		op, err := pool.Get(context.Background(), "op-1")
		require.NoError(t, err)
		assert.False(t, op.Online)
	})

	t.Run("list is tenant scoped", func(t *testing.T) {
		srv, _ := newOperatorTestServer(t, "tenant-b")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/operators/available", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Operators []model.Operator `json:"operators"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Operators)
	})

	t.Run("unknown operator", func(t *testing.T) {
		srv, _ := newOperatorTestServer(t, "tenant-a")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/operators/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
