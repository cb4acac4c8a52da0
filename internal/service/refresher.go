package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/internal/store"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
)

// ConversationAPI is the REST collaborator for conversations.
type ConversationAPI interface {
	FetchAll(ctx context.Context) ([]model.Conversation, error)
	MarkRead(ctx context.Context, conversationID int64) error
}

// Refresher installs bulk fetches into the store without overwriting
// state pushed while the fetch was in flight.
type Refresher struct {
	store  *store.Store
	api    ConversationAPI
	logger *logger.Logger

	// mu serializes fetches so an older response never lands after a
	// newer one.
	mu sync.Mutex
}

// NewRefresher creates a refresher.
func NewRefresher(st *store.Store, api ConversationAPI, log *logger.Logger) *Refresher {
	return &Refresher{
		store:  st,
		api:    api,
		logger: logger.OrNop(log).Component("refresher"),
	}
}

// Refresh fetches every conversation and installs the batch. After the
// store is closed the result is discarded and store.ErrClosed returned.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := r.store.Stamp()

	convs, err := r.api.FetchAll(ctx)
	if err != nil {
		r.logger.Error("failed to fetch conversations", zap.Error(err))
		return err
	}

	if err := r.store.ReplaceAllSince(ctx, since, convs); err != nil {
		if !errors.Is(err, store.ErrClosed) {
			r.logger.Error("failed to install conversations", zap.Error(err))
		}
		return err
	}

	r.logger.Debug("conversations refreshed", zap.Int("count", len(convs)))
	return nil
}
