// Package service coordinates the conversation store with its update
// sources and exposes the operations of the chat console.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/model"
	natsclient "github.com/capitalize-ai/admin-chat/internal/nats"
	"github.com/capitalize-ai/admin-chat/internal/store"
	"github.com/capitalize-ai/admin-chat/internal/view"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/tracing"
)

// Transport is the push channel the service consumes and sends on.
type Transport interface {
	Connect(ctx context.Context) (*natsclient.Client, error)
	Subscribe(topic string) (<-chan model.ConversationEvent, error)
	SendMessage(ctx context.Context, msg model.OutboundMessage) error
	IsConnected() bool
	Disconnect()
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	OperatorID      int64
	BroadcastTopic  string
	DefaultPageSize int
}

// ChatService keeps the conversation store in sync with the bulk fetch
// and the broadcast stream, and serves the console's actions.
type ChatService struct {
	cfg        ChatConfig
	store      *store.Store
	transport  Transport
	refresher  *Refresher
	reconciler *ReadReconciler
	logger     *logger.Logger

	subscribed atomic.Bool
	loaded     atomic.Bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewChatService wires a service around st. The service owns st and
// closes it in Close.
func NewChatService(cfg ChatConfig, st *store.Store, transport Transport, api ConversationAPI, log *logger.Logger) *ChatService {
	log = logger.OrNop(log)
	if cfg.BroadcastTopic == "" {
		cfg.BroadcastTopic = natsclient.DefaultBroadcastTopic
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 5
	}

	refresher := NewRefresher(st, api, log)
	return &ChatService{
		cfg:        cfg,
		store:      st,
		transport:  transport,
		refresher:  refresher,
		reconciler: NewReadReconciler(st, api, refresher, cfg.OperatorID, log),
		logger:     log.Component("chat"),
	}
}

// Start launches the initial bulk fetch, then connects the transport and
// subscribes to the broadcast topic. Neither the fetch nor the event pump
// blocks the other. A transport failure is returned but leaves the fetch
// running, so the console still serves the bulk state without live
// updates. Close must be called even when Start fails.
func (s *ChatService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.refresher.Refresh(runCtx); err == nil {
			s.loaded.Store(true)
		}
	}()

	if _, err := s.transport.Connect(ctx); err != nil {
		return err
	}

	events, err := s.transport.Subscribe(s.cfg.BroadcastTopic)
	if err != nil {
		s.logger.Error("failed to subscribe to broadcast topic",
			zap.String("topic", s.cfg.BroadcastTopic),
			zap.Error(err),
		)
		return err
	}
	s.subscribed.Store(true)

	s.wg.Add(1)
	go s.pump(runCtx, events)

	s.logger.Info("chat service started", zap.String("topic", s.cfg.BroadcastTopic))
	return nil
}

// pump applies pushed conversations in delivery order.
func (s *ChatService) pump(ctx context.Context, events <-chan model.ConversationEvent) {
	defer s.wg.Done()

	for ev := range events {
		if err := s.store.MergeOne(ctx, ev.Conversation); err != nil {
			if errors.Is(err, store.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to merge pushed conversation",
				zap.Int64("conversation_id", ev.Conversation.ID),
				zap.Error(err),
			)
		}
	}
	s.subscribed.Store(false)
}

// Close releases the transport and the store. Completions that arrive
// afterwards are discarded. Close is idempotent.
func (s *ChatService) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.transport.Disconnect()
		s.store.Close()
		s.wg.Wait()
		s.subscribed.Store(false)
		s.logger.Info("chat service stopped")
	})
}

// Ready reports whether the stream is live and the first bulk fetch
// has been installed.
func (s *ChatService) Ready() bool {
	return s.subscribed.Load() && s.loaded.Load()
}

// Connected reports whether the transport is connected.
func (s *ChatService) Connected() bool {
	return s.transport.IsConnected()
}

// Refresh reloads every conversation from the back office.
func (s *ChatService) Refresh(ctx context.Context) error {
	if err := s.refresher.Refresh(ctx); err != nil {
		return err
	}
	s.loaded.Store(true)
	return nil
}

// Send publishes content to conversationID as the operator. Empty
// content or a missing conversation is ignored without error.
func (s *ChatService) Send(ctx context.Context, conversationID int64, content string) error {
	ctx, span := tracing.Tracer().Start(ctx, "chat.send")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", conversationID))

	if err := validateSend(conversationID, content); err != nil {
		s.logger.Debug("ignoring send", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return nil
	}

	return s.transport.SendMessage(ctx, model.OutboundMessage{
		SenderID:       OperatorFrom(ctx, s.cfg.OperatorID),
		Content:        content,
		ConversationID: conversationID,
	})
}

func validateSend(conversationID int64, content string) error {
	if conversationID <= 0 {
		return errors.Join(model.ErrValidation, errors.New("no conversation selected"))
	}
	if strings.TrimSpace(content) == "" {
		return errors.Join(model.ErrValidation, errors.New("empty message"))
	}
	return nil
}

// Select marks conversationID as read for the operator.
func (s *ChatService) Select(ctx context.Context, conversationID int64) (Outcome, error) {
	if conversationID <= 0 {
		return OutcomeDiscarded, nil
	}
	return s.reconciler.MarkConversationRead(ctx, conversationID)
}

// Page returns the requested window of the ordered conversation list.
// A zero page size selects the configured default.
func (s *ChatService) Page(ctx context.Context, req model.PageRequest) *model.ConversationPage {
	if req.PageSize == 0 {
		req.PageSize = s.cfg.DefaultPageSize
	}
	if req.PageIndex == 0 {
		req.PageIndex = 1
	}
	return view.Summarize(s.store.Snapshot(), req, OperatorFrom(ctx, s.cfg.OperatorID))
}

// Conversation returns one conversation with its full message list.
func (s *ChatService) Conversation(id int64) (model.Conversation, bool) {
	return s.store.Get(id)
}

// Changes signals after every store mutation until ctx ends.
func (s *ChatService) Changes(ctx context.Context) <-chan struct{} {
	return s.store.Subscribe(ctx)
}
