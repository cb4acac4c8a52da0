package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/store"
	"github.com/capitalize-ai/admin-chat/internal/unread"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/tracing"
)

// Outcome describes how a mark-read request ended.
type Outcome string

const (
	// OutcomeConfirmed means the back office acknowledged the read.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRefreshed means the acknowledgment failed and the store was
	// reloaded from the back office.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeUnreconciled means both the acknowledgment and the reload
	// failed; optimistic flags remain until the next refresh.
	OutcomeUnreconciled Outcome = "unreconciled"
	// OutcomeDiscarded means the store was torn down; nothing was applied.
	OutcomeDiscarded Outcome = "discarded"
)

// ReadReconciler applies read state optimistically and reconciles it
// with the back office.
type ReadReconciler struct {
	store      *store.Store
	api        ConversationAPI
	refresher  *Refresher
	operatorID int64
	logger     *logger.Logger
}

// NewReadReconciler creates a reconciler acting for operatorID.
func NewReadReconciler(st *store.Store, api ConversationAPI, refresher *Refresher, operatorID int64, log *logger.Logger) *ReadReconciler {
	return &ReadReconciler{
		store:      st,
		api:        api,
		refresher:  refresher,
		operatorID: operatorID,
		logger:     logger.OrNop(log).Component("reconciler"),
	}
}

// MarkConversationRead marks every message not sent by the operator as
// read. The operator is taken from ctx, falling back to the configured one.
// It then acknowledges the read remotely. When the acknowledgment fails the
// authoritative state is re-fetched, which replaces the optimistic flags.
// The returned error is the acknowledgment failure, if any.
func (r *ReadReconciler) MarkConversationRead(ctx context.Context, conversationID int64) (Outcome, error) {
	ctx, span := tracing.Tracer().Start(ctx, "reconciler.mark_read")
	defer span.End()
	span.SetAttributes(attribute.Int64("conversation.id", conversationID))

	log := r.logger.With(zap.Int64("conversation_id", conversationID))

	changed, err := r.store.MarkRead(ctx, conversationID, unread.NotSentBy(OperatorFrom(ctx, r.operatorID)))
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return OutcomeDiscarded, nil
		}
		return OutcomeUnreconciled, err
	}
	span.SetAttributes(attribute.Int("messages.changed", changed))

	ackErr := r.api.MarkRead(ctx, conversationID)
	if ackErr == nil {
		return OutcomeConfirmed, nil
	}

	span.RecordError(ackErr)
	log.Warn("read acknowledgment failed, reloading conversations", zap.Error(ackErr))

	if err := r.refresher.Refresh(ctx); err != nil {
		if errors.Is(err, store.ErrClosed) {
			return OutcomeDiscarded, ackErr
		}
		log.Error("reload after failed acknowledgment failed", zap.Error(err))
		return OutcomeUnreconciled, ackErr
	}
	return OutcomeRefreshed, ackErr
}
