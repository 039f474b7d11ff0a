package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/dispatcher"
	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/pkg/logger"
)

// EscalationHandler handles escalation lifecycle endpoints.
type EscalationHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *logger.Logger
}

// NewEscalationHandler creates an escalation handler.
func NewEscalationHandler(d *dispatcher.Dispatcher, log *logger.Logger) *EscalationHandler {
	return &EscalationHandler{
		dispatcher: d,
		logger:     log,
	}
}

func actorFrom(r *http.Request) dispatcher.Actor {
	return dispatcher.Actor{
		UserID:   middleware.GetUserID(r.Context()),
		Elevated: middleware.HasScope(r.Context(), middleware.ScopeAdmin),
	}
}

// Request handles POST /api/v1/escalations
func (h *EscalationHandler) Request(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	var req model.EscalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateEscalationReason(req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Priority != "" && !model.ValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "unknown escalation priority")
		return
	}

	esc, err := h.dispatcher.Request(r.Context(), tenantID, &req, false, nil)
	if err != nil {
		h.logger.Error("escalation request failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to request escalation")
		return
	}

	// Pending with no operator is a legitimate outcome; the record captures
	// it, so the request still succeeds.
	writeJSON(w, http.StatusCreated, esc)
}

// Status handles GET /api/v1/conversations/{id}/escalation
func (h *EscalationHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	esc, err := h.dispatcher.Status(r.Context(), tenantID, conversationID)
	if err != nil {
		if errors.Is(err, dispatcher.ErrEscalationNotFound) {
			writeError(w, http.StatusNotFound, "no escalation for conversation")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read escalation status")
		return
	}

	writeJSON(w, http.StatusOK, esc)
}

// Queue handles GET /api/v1/escalations
func (h *EscalationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	status := model.EscalationStatus(r.URL.Query().Get("status"))
	queue, err := h.dispatcher.Queue(r.Context(), tenantID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read escalation queue")
		return
	}

	writeJSON(w, http.StatusOK, queue)
}

// Assign handles POST /api/v1/conversations/{id}/escalation/assign
func (h *EscalationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	esc, err := h.dispatcher.Assign(r.Context(), tenantID, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, dispatcher.ErrEscalationNotFound):
			writeError(w, http.StatusNotFound, "no escalation for conversation")
		case errors.Is(err, dispatcher.ErrNoOperatorAvailable):
			writeError(w, http.StatusConflict, "no operator available")
		default:
			writeError(w, http.StatusInternalServerError, "failed to assign escalation")
		}
		return
	}

	writeJSON(w, http.StatusOK, esc)
}

// Start handles POST /api/v1/conversations/{id}/escalation/start
func (h *EscalationHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error) {
		return h.dispatcher.Start(r.Context(), tenantID, conversationID, actor)
	})
}

// Hold handles POST /api/v1/conversations/{id}/escalation/hold
func (h *EscalationHandler) Hold(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error) {
		return h.dispatcher.Hold(r.Context(), tenantID, conversationID, actor)
	})
}

// Resume handles POST /api/v1/conversations/{id}/escalation/resume
func (h *EscalationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error) {
		return h.dispatcher.Resume(r.Context(), tenantID, conversationID, actor)
	})
}

// Resolve handles POST /api/v1/conversations/{id}/escalation/resolve
func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	notes := decodeNotes(r)
	h.transition(w, r, func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error) {
		return h.dispatcher.Resolve(r.Context(), tenantID, conversationID, actor, notes)
	})
}

// Close handles POST /api/v1/conversations/{id}/escalation/close
func (h *EscalationHandler) Close(w http.ResponseWriter, r *http.Request) {
	notes := decodeNotes(r)
	h.transition(w, r, func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error) {
		return h.dispatcher.Close(r.Context(), tenantID, conversationID, actor, notes)
	})
}

func (h *EscalationHandler) transition(w http.ResponseWriter, r *http.Request, fn func(tenantID, conversationID string, actor dispatcher.Actor) (*model.Escalation, error)) {
	tenantID := middleware.GetTenantID(r.Context())
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	esc, err := fn(tenantID, conversationID, actorFrom(r))
	if err != nil {
		switch {
		case errors.Is(err, dispatcher.ErrEscalationNotFound):
			writeError(w, http.StatusNotFound, "no escalation for conversation")
		case errors.Is(err, dispatcher.ErrAuthorizationDenied):
			writeError(w, http.StatusForbidden, "escalation is assigned to another operator")
		case errors.Is(err, dispatcher.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "transition not allowed from current status")
		default:
			h.logger.Error("escalation transition failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to update escalation")
		}
		return
	}

	writeJSON(w, http.StatusOK, esc)
}
