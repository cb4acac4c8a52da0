package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/metrics"
	"github.com/capitalize-ai/admin-chat/pkg/tracing"
)

// ErrNotConnected is returned by Subscribe and Publish before Connect
// succeeds or after Disconnect.
var ErrNotConnected = errors.New("transport session not connected")

const defaultEventBuffer = 256

// SessionConfig configures a transport session.
type SessionConfig struct {
	Conn       Config
	SendPrefix string

	// EventBuffer is the capacity of the inbound event channel.
	EventBuffer int
}

// Session owns one broker connection and its broadcast subscriptions.
// Disconnect must be called on every exit path, including after a
// failed Connect.
type Session struct {
	cfg    SessionConfig
	logger *logger.Logger
	dial   func(Config, *logger.Logger) (*Client, error)

	mu     sync.Mutex
	client *Client
	subs   []*subscription
	closed bool
}

// NewSession creates an unconnected session.
func NewSession(cfg SessionConfig, log *logger.Logger) *Session {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &Session{
		cfg:    cfg,
		logger: logger.OrNop(log).Component("transport"),
		dial:   Connect,
	}
}

// Connect opens the broker connection. It fails with a
// *model.ConnectionError and is not retried. The dial runs without the
// session lock, so Disconnect never waits on it; a connection that
// completes after Disconnect is closed and ErrNotConnected returned.
func (s *Session) Connect(ctx context.Context) (*Client, error) {
	_, span := tracing.Tracer().Start(ctx, "transport.connect")
	defer span.End()

	s.mu.Lock()
	closed, existing := s.closed, s.client
	s.mu.Unlock()

	if closed {
		return nil, ErrNotConnected
	}
	if existing != nil {
		return existing, nil
	}

	client, err := s.dial(s.cfg.Conn, s.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		s.logger.Error("failed to connect transport",
			zap.String("url", s.cfg.Conn.URL),
			zap.Error(err),
		)
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		client.Close()
		return nil, ErrNotConnected
	}
	if s.client != nil {
		// Lost a race with a concurrent Connect.
		existing := s.client
		s.mu.Unlock()
		client.Close()
		return existing, nil
	}
	s.client = client
	s.mu.Unlock()

	s.logger.Info("transport connected", zap.String("url", s.cfg.Conn.URL))
	return client, nil
}

// IsConnected reports whether the broker connection is up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.IsConnected()
}

// Subscribe registers interest in topic and returns the decoded event
// stream. The stream is closed by Disconnect. Envelopes with a failure
// code or an undecodable body are logged and skipped.
func (s *Session) Subscribe(topic string) (<-chan model.ConversationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.client == nil {
		return nil, ErrNotConnected
	}

	sub := newSubscription(topic, s.cfg.EventBuffer, s.logger)
	ns, err := s.client.Conn().Subscribe(topic, sub.handle)
	if err != nil {
		sub.close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	sub.nsub = ns
	s.subs = append(s.subs, sub)

	s.logger.Info("subscribed", zap.String("subject", topic))
	return sub.events, nil
}

// Publish serializes payload as JSON and publishes it to destination
// without waiting for any acknowledgment.
func (s *Session) Publish(ctx context.Context, destination string, payload any) error {
	_, span := tracing.Tracer().Start(ctx, "transport.publish")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.destination", destination))

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	s.mu.Lock()
	client := s.client
	closed := s.closed
	s.mu.Unlock()

	if closed || client == nil {
		metrics.OutboundMessagesTotal.WithLabelValues("not_connected").Inc()
		return ErrNotConnected
	}

	if err := client.Conn().Publish(destination, data); err != nil {
		span.RecordError(err)
		metrics.OutboundMessagesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", destination, err)
	}

	metrics.OutboundMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// SendMessage publishes msg to its conversation's send subject.
func (s *Session) SendMessage(ctx context.Context, msg model.OutboundMessage) error {
	return s.Publish(ctx, SendSubject(s.cfg.SendPrefix, msg.ConversationID), msg)
}

// Disconnect releases every subscription and the connection. It is safe
// to call at any time, any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	client := s.client
	s.subs = nil
	s.client = nil
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.nsub != nil {
			if err := sub.nsub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				s.logger.Warn("failed to unsubscribe", zap.String("subject", sub.topic), zap.Error(err))
			}
		}
		sub.close()
	}

	if client != nil {
		client.Close()
		s.logger.Info("transport disconnected")
	}
}

// subscription decodes raw broker messages for one topic into an
// ordered event channel.
type subscription struct {
	topic  string
	nsub   *nats.Subscription
	logger *logger.Logger

	events chan model.ConversationEvent
	done   chan struct{}

	// mu guards events against a send racing its close.
	mu     sync.RWMutex
	closed bool
}

func newSubscription(topic string, buffer int, log *logger.Logger) *subscription {
	return &subscription{
		topic:  topic,
		logger: log,
		events: make(chan model.ConversationEvent, buffer),
		done:   make(chan struct{}),
	}
}

// handle is the broker callback. The client invokes it sequentially per
// subscription, so events leave in delivery order.
func (s *subscription) handle(msg *nats.Msg) {
	ev, err := decodeEvent(msg)
	if err != nil {
		var de *model.DeliveryError
		if errors.As(err, &de) {
			metrics.RecordInbound("rejected")
			s.logger.Warn("dropping envelope with failure code",
				zap.String("subject", msg.Subject),
				zap.String("resp_code", de.RespCode),
				zap.String("detail", de.Detail),
			)
		} else {
			metrics.RecordInbound("undecodable")
			s.logger.Warn("dropping undecodable envelope",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- ev:
		metrics.RecordInbound("delivered")
	case <-s.done:
	}
}

func (s *subscription) close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}

	s.mu.Lock()
	s.closed = true
	close(s.events)
	s.mu.Unlock()
}

func decodeEvent(msg *nats.Msg) (model.ConversationEvent, error) {
	var env model.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return model.ConversationEvent{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var conv model.Conversation
	if err := env.DecodeData(&conv); err != nil {
		return model.ConversationEvent{}, err
	}
	if conv.ID <= 0 {
		return model.ConversationEvent{}, model.ErrMissingID
	}

	return model.ConversationEvent{Subject: msg.Subject, Conversation: conv}, nil
}
