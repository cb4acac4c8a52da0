// Package handler provides HTTP handlers for the console API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/capitalize-ai/admin-chat/internal/middleware"
	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/internal/service"
)

// Chat is the chat service as seen by the handlers.
type Chat interface {
	Page(ctx context.Context, req model.PageRequest) *model.ConversationPage
	Conversation(id int64) (model.Conversation, bool)
	Send(ctx context.Context, conversationID int64, content string) error
	Select(ctx context.Context, conversationID int64) (service.Outcome, error)
	Refresh(ctx context.Context) error
	Changes(ctx context.Context) <-chan struct{}
	Ready() bool
	Connected() bool
}

// operatorContext makes the authenticated operator the acting operator
// for the chat service. Tokens without a numeric subject act as the
// configured operator.
func operatorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := middleware.GetOperatorID(r.Context()); ok {
			r = r.WithContext(service.WithOperator(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
