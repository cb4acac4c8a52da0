package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/middleware"
	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/metrics"
)

const defaultHeartbeat = 30 * time.Second

// StreamHandler serves the live conversation list over SSE.
type StreamHandler struct {
	chat      Chat
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chat Chat, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chat:      chat,
		logger:    logger.OrNop(log),
		heartbeat: defaultHeartbeat,
	}
}

// Stream handles GET /api/v1/conversations/stream?page=N&size=M[&conversation_id=ID]
// It emits the requested page on connect and again after every store
// change. With conversation_id it also emits that conversation in full.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := pageRequest(r)

	var selected int64
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := middleware.ParseConversationID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		selected = id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	streamID := uuid.NewString()
	log := h.logger.With(zap.String("stream_id", streamID))

	changes := h.chat.Changes(ctx)

	sendSSEEvent(w, flusher, "connected", map[string]string{"stream_id": streamID})

	push := func() error {
		if err := sendSSEEvent(w, flusher, "page", h.chat.Page(ctx, req)); err != nil {
			return err
		}
		if selected != 0 {
			if conv, ok := h.chat.Conversation(selected); ok {
				return sendSSEEvent(w, flusher, "conversation", conv)
			}
		}
		return nil
	}
	if err := push(); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case _, ok := <-changes:
			if !ok {
				log.Debug("store closed, ending stream")
				return
			}
			if err := push(); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
