package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/operator"
	"github.com/converge-ai/support-platform/pkg/logger"
)

// OperatorHandler handles operator pool endpoints.
type OperatorHandler struct {
	pool   operator.Pool
	logger *logger.Logger
}

// NewOperatorHandler creates an operator handler.
func NewOperatorHandler(pool operator.Pool, log *logger.Logger) *OperatorHandler {
	return &OperatorHandler{
		pool:   pool,
		logger: log,
	}
}

// ListAvailable handles GET /api/v1/operators/available
func (h *OperatorHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	ops, err := h.pool.ListAvailable(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list available operators", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list operators")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operators": ops,
	})
}

// Get handles GET /api/v1/operators/{id}
func (h *OperatorHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, ok := h.tenantOperator(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// SetAvailability handles PUT /api/v1/operators/{id}/availability
func (h *OperatorHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, ok := h.tenantOperator(w, r)
	if !ok {
		return
	}

	op, err := h.pool.SetAvailability(r.Context(), existing.ID, body.Online)
	if err != nil {
		if errors.Is(err, operator.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operator not found")
			return
		}
		h.logger.Error("failed to set operator availability",
			zap.String("operator_id", existing.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to update operator")
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// tenantOperator loads the addressed operator and enforces tenant ownership.
// A foreign tenant's operator is indistinguishable from a missing one.
func (h *OperatorHandler) tenantOperator(w http.ResponseWriter, r *http.Request) (*model.Operator, bool) {
	operatorID := chi.URLParam(r, "id")

	op, err := h.pool.Get(r.Context(), operatorID)
	if err != nil {
		if errors.Is(err, operator.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operator not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to read operator")
		return nil, false
	}
	if op.TenantID != middleware.GetTenantID(r.Context()) {
		writeError(w, http.StatusNotFound, "operator not found")
		return nil, false
	}
	return op, true
}
