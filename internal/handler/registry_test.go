package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/pkg/logger"
)

func newRegistryTestServer(t *testing.T, callerTenant string) *chi.Mux {
	t.Helper()

	reg := registry.New()
	reg.Register("tenant-a", model.HandlerDefinition{
		Name:        "order_status",
		Description: "Order tracking",
		Capabilities: []model.CapabilityDefinition{
			{Name: "fallback", Priority: 2},
			{Name: "track_order", Priority: 1, Idempotent: true},
		},
	})

	rh := NewRegistryHandler(reg, logger.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.TenantIDKey, callerTenant)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/v1/handlers", rh.List)
	r.Get("/api/v1/handlers/{name}/capabilities", rh.Capabilities)
	return r
}

func TestRegistryEndpoints(t *testing.T) {
	t.Run("list enabled handlers", func(t *testing.T) {
		srv := newRegistryTestServer(t, "tenant-a")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Handlers []model.HandlerDefinition `json:"handlers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Handlers, 1)
		assert.Equal(t, "order_status", resp.Handlers[0].Name)
	})

	t.Run("list is tenant scoped", func(t *testing.T) {
		srv := newRegistryTestServer(t, "tenant-b")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Handlers []model.HandlerDefinition `json:"handlers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Handlers)
	})

	t.Run("capabilities ordered by priority", func(t *testing.T) {
		srv := newRegistryTestServer(t, "tenant-a")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/handlers/order_status/capabilities", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Handler      string                       `json:"handler"`
			Capabilities []model.CapabilityDefinition `json:"capabilities"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "order_status", resp.Handler)
		require.Len(t, resp.Capabilities, 2)
		assert.Equal(t, "track_order", resp.Capabilities[0].Name)
	})

	t.Run("unknown handler", func(t *testing.T) {
		srv := newRegistryTestServer(t, "tenant-a")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/handlers/billing/capabilities", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("foreign tenant cannot read capabilities", func(t *testing.T) {
		srv := newRegistryTestServer(t, "tenant-b")

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/handlers/order_status/capabilities", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
