package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/pkg/logger"
)

// RegistryHandler exposes the tenant's enabled handlers and their
// capabilities.
type RegistryHandler struct {
	registry *registry.Registry
	logger   *logger.Logger
}

// NewRegistryHandler creates a registry handler.
func NewRegistryHandler(reg *registry.Registry, log *logger.Logger) *RegistryHandler {
	return &RegistryHandler{
		registry: reg,
		logger:   log,
	}
}

// List handles GET /api/v1/handlers
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"handlers": h.registry.ListEnabledHandlers(tenantID),
	})
}

// Capabilities handles GET /api/v1/handlers/{name}/capabilities
func (h *RegistryHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	name := chi.URLParam(r, "name")

	caps, err := h.registry.ListCapabilities(tenantID, name)
	if err != nil {
		if errors.Is(err, registry.ErrHandlerUnavailable) {
			writeError(w, http.StatusNotFound, "handler not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list capabilities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"handler":      name,
		"capabilities": caps,
	})
}
