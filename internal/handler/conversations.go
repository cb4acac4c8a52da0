package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/middleware"
	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/internal/service"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
)

const maxPageSize = 100

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	chat   Chat
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(chat Chat, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		chat:   chat,
		logger: logger.OrNop(log),
	}
}

// ReadResponse is the response for a mark-read request.
type ReadResponse struct {
	ConversationID int64           `json:"conversation_id"`
	Outcome        service.Outcome `json:"outcome"`
	Error          string          `json:"error,omitempty"`
}

func pageRequest(r *http.Request) model.PageRequest {
	q := r.URL.Query()
	return model.PageRequest{
		PageIndex: middleware.ParsePositiveInt(q.Get("page"), 1, 0),
		PageSize:  middleware.ParsePositiveInt(q.Get("size"), 0, maxPageSize),
	}
}

// List handles GET /api/v1/conversations?page=N&size=M
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Page(r.Context(), pageRequest(r)))
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, conv)
}

// Read handles PUT /api/v1/conversations/{id}/read
func (h *ConversationHandler) Read(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.chat.Select(r.Context(), id)
	resp := &ReadResponse{ConversationID: id, Outcome: outcome}
	if err != nil {
		h.logger.Warn("failed to acknowledge read",
			zap.Int64("conversation_id", id),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		resp.Error = "failed to mark conversation as read"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/conversations/refresh
func (h *ConversationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Refresh(r.Context()); err != nil {
		h.logger.Error("failed to refresh conversations", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to refresh conversations")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
