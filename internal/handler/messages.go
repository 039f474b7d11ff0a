package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/converge-ai/support-platform/internal/contextstore"
	"github.com/converge-ai/support-platform/internal/detector"
	"github.com/converge-ai/support-platform/internal/executor"
	"github.com/converge-ai/support-platform/internal/middleware"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/internal/router"
	"github.com/converge-ai/support-platform/pkg/logger"
)

const (
	multiIntentReply = "I can help with one request at a time. Which would you like to start with?"
	unclearReply     = "I'm not sure I understood that. Could you tell me a bit more about what you need?"
)

// MessageHandler handles inbound conversation messages: route, execute,
// scan for escalation keywords.
type MessageHandler struct {
	router   *router.Router
	executor *executor.Executor
	store    contextstore.Store
	detector *detector.Detector
	logger   *logger.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(rt *router.Router, ex *executor.Executor, store contextstore.Store, det *detector.Detector, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		router:   rt,
		executor: ex,
		store:    store,
		detector: det,
		logger:   log,
	}
}

// messageResponse is the reply envelope for POST /api/v1/messages.
type messageResponse struct {
	ConversationID      string              `json:"conversation_id"`
	Decision            router.Decision     `json:"decision"`
	Reply               *executor.Reply     `json:"reply,omitempty"`
	Text                string              `json:"text,omitempty"`
	EscalationSuggested bool                `json:"escalation_suggested"`
	Detection           *detector.Detection `json:"detection,omitempty"`
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}

	var req model.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateHandlerName(req.ExplicitHandler); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, err := h.router.Route(r.Context(), req.ConversationID, tenantID, req.Text, req.ExplicitHandler)
	if err != nil {
		if errors.Is(err, registry.ErrHandlerUnavailable) {
			writeError(w, http.StatusUnprocessableEntity, "requested handler is not enabled for this tenant")
			return
		}
		h.logger.Error("routing failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to route message")
		return
	}

	detection := h.detector.Detect(tenantID, req.Text)

	resp := messageResponse{
		ConversationID:      req.ConversationID,
		Decision:            decision,
		EscalationSuggested: detection.ShouldEscalate,
	}
	if detection.ShouldEscalate {
		resp.Detection = &detection
	}

	switch decision.Kind {
	case router.DecisionHandler:
		reply, err := h.executor.Execute(r.Context(), req.ConversationID, tenantID, decision.Handler, req.Text)
		if err != nil {
			if errors.Is(err, registry.ErrHandlerUnavailable) {
				writeError(w, http.StatusUnprocessableEntity, "requested handler is not enabled for this tenant")
				return
			}
			h.logger.Error("handler execution failed",
				zap.String("conversation_id", req.ConversationID),
				zap.String("handler", decision.Handler),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to execute handler")
			return
		}
		resp.Reply = reply
		resp.Text = reply.Text
		if reply.Kind == executor.ReplyNeedsEscalation {
			resp.EscalationSuggested = true
		}

	case router.DecisionMultiIntent:
		resp.Text = multiIntentReply
		h.appendExchange(r, tenantID, req.ConversationID, req.Text, multiIntentReply)

	case router.DecisionUnclear:
		resp.Text = unclearReply
		h.appendExchange(r, tenantID, req.ConversationID, req.Text, unclearReply)
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/v1/conversations/{conversationID}/turns
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turns, err := h.store.ReadLastN(r.Context(), tenantID, conversationID, 50)
	if err != nil {
		h.logger.Error("failed to read conversation history",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to read conversation history")
		return
	}

	conv := model.Conversation{
		ID:       conversationID,
		TenantID: tenantID,
		Status:   model.ConversationOpen,
	}
	if n := len(turns); n > 0 {
		conv.CreatedAt = turns[0].CreatedAt
		conv.UpdatedAt = turns[n-1].CreatedAt
		conv.LastTurnAt = &turns[n-1].CreatedAt
		conv.TurnCount = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"turns":        turns,
	})
}

// appendExchange records the user message and the canned system reply for
// turns that never reach a handler. Append failures are logged, not fatal:
// the user already has the reply in hand.
func (h *MessageHandler) appendExchange(r *http.Request, tenantID, conversationID, userText, systemText string) {
	now := time.Now().UTC()
	userTurn := &model.Turn{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Role:           model.RoleUser,
		Content:        userText,
		CreatedAt:      now,
	}
	if _, err := h.store.Append(r.Context(), userTurn); err != nil {
		h.logger.Warn("failed to append user turn",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	systemTurn := &model.Turn{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Role:           model.RoleSystem,
		Content:        systemText,
		CreatedAt:      now,
	}
	if _, err := h.store.Append(r.Context(), systemTurn); err != nil {
		h.logger.Warn("failed to append system turn",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}
