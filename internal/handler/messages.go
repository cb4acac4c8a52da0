package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/middleware"
	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	chat   Chat
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chat Chat, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chat:   chat,
		logger: logger.OrNop(log),
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, ok := h.chat.Conversation(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	msgs := conv.MessageList
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// Send handles POST /api/v1/conversations/{id}/messages
// Delivery is fire-and-forget; the message shows up through the
// broadcast stream once the back office has stored it.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chat.Send(r.Context(), id, req.Content); err != nil {
		h.logger.Error("failed to send message", zap.Int64("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to send message")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
