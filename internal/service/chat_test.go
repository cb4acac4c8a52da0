package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/admin-chat/internal/model"
	natsclient "github.com/capitalize-ai/admin-chat/internal/nats"
	"github.com/capitalize-ai/admin-chat/internal/store"
)

const (
	operatorID = int64(100)
	customerID = int64(7)
)

type fakeTransport struct {
	mu           sync.Mutex
	connectErr   error
	events       chan model.ConversationEvent
	sent         []model.OutboundMessage
	disconnected int
	closeOnce    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan model.ConversationEvent, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context) (*natsclient.Client, error) {
	return nil, f.connectErr
}

func (f *fakeTransport) Subscribe(topic string) (<-chan model.ConversationEvent, error) {
	return f.events, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, msg model.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connectErr == nil }

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.events) })
}

func (f *fakeTransport) sentMessages() []model.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.OutboundMessage(nil), f.sent...)
}

type fakeAPI struct {
	mu          sync.Mutex
	convs       []model.Conversation
	fetchErr    error
	markErr     error
	fetchCalls  int
	markCalls   []int64
	fetchGate   chan struct{}
	markStarted chan struct{}
	markGate    chan struct{}
}

func (f *fakeAPI) FetchAll(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]model.Conversation, len(f.convs))
	for i := range f.convs {
		out[i] = f.convs[i].Clone()
	}
	return out, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id int64) error {
	if f.markStarted != nil {
		close(f.markStarted)
	}
	if f.markGate != nil {
		<-f.markGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, id)
	return f.markErr
}

func (f *fakeAPI) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func customerConv(id int64, msgIDs ...int64) model.Conversation {
	c := model.Conversation{ID: id, HostName: "customer"}
	for _, m := range msgIDs {
		c.MessageList = append(c.MessageList, model.Message{ID: m, SenderID: customerID, SenderRole: model.RoleUser, Content: "hello"})
	}
	return c
}

func newTestService(t *testing.T, api *fakeAPI) (*ChatService, *fakeTransport, *store.Store) {
	t.Helper()
	tr := newFakeTransport()
	st := store.New(nil)
	svc := NewChatService(ChatConfig{OperatorID: operatorID, DefaultPageSize: 5}, st, tr, api, nil)
	t.Cleanup(svc.Close)
	return svc, tr, st
}

func TestChatService_StartLoadsAndStreams(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{customerConv(1, 1), customerConv(2)}}
	svc, tr, st := newTestService(t, api)

	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, svc.Ready, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, st.Len())

	tr.events <- model.ConversationEvent{Conversation: customerConv(3, 5)}
	require.Eventually(t, func() bool { return st.Len() == 3 }, time.Second, 5*time.Millisecond)

	page := svc.Page(context.Background(), model.PageRequest{})
	require.Len(t, page.Conversations, 3)
	assert.Equal(t, int64(3), page.Conversations[0].ID)
	assert.Equal(t, 1, page.Conversations[0].UnreadCount)
	assert.Equal(t, int64(2), page.Conversations[2].ID)
}

func TestChatService_PushDuringBulkFetchIsKept(t *testing.T) {
	api := &fakeAPI{
		convs:     []model.Conversation{customerConv(1, 1)},
		fetchGate: make(chan struct{}),
	}
	svc, tr, st := newTestService(t, api)

	require.NoError(t, svc.Start(context.Background()))

	tr.events <- model.ConversationEvent{Conversation: customerConv(1, 1, 2)}
	require.Eventually(t, func() bool { return st.Len() == 1 }, time.Second, 5*time.Millisecond)

	close(api.fetchGate)
	require.Eventually(t, svc.Ready, time.Second, 5*time.Millisecond)

	c, ok := svc.Conversation(1)
	require.True(t, ok)
	assert.Len(t, c.MessageList, 2)
}

func TestChatService_ConnectionErrorStillLoadsConversations(t *testing.T) {
	api := &fakeAPI{convs: []model.Conversation{customerConv(1, 1), customerConv(2, 3)}}
	svc, tr, st := newTestService(t, api)
	tr.connectErr = &model.ConnectionError{URL: "nats://down", Err: errors.New("refused")}

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, model.ErrConnection)

	require.Eventually(t, func() bool { return st.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, api.fetches())
	assert.False(t, svc.Ready())

	page := svc.Page(context.Background(), model.PageRequest{})
	require.Len(t, page.Conversations, 2)
	assert.Equal(t, int64(2), page.Conversations[0].ID)

	svc.Close()
	svc.Close()
	assert.Equal(t, 1, tr.disconnected)
}

func TestChatService_ActsForOperatorInContext(t *testing.T) {
	const other = int64(555)
	api := &fakeAPI{}
	svc, tr, st := newTestService(t, api)
	ctx := WithOperator(context.Background(), other)

	c := customerConv(1, 1)
	c.MessageList = append(c.MessageList, model.Message{ID: 2, SenderID: other, Content: "on it"})
	require.NoError(t, st.ReplaceAll(context.Background(), []model.Conversation{c}))

	assert.Equal(t, 2, svc.Page(context.Background(), model.PageRequest{}).Conversations[0].UnreadCount)
	assert.Equal(t, 1, svc.Page(ctx, model.PageRequest{}).Conversations[0].UnreadCount)

	require.NoError(t, svc.Send(ctx, 1, "thanks"))
	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, other, sent[0].SenderID)

	outcome, err := svc.Select(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	got, ok := svc.Conversation(1)
	require.True(t, ok)
	assert.True(t, got.MessageList[0].Read)
	assert.False(t, got.MessageList[1].Read, "own message stays untouched")
}

func TestOperatorFrom(t *testing.T) {
	assert.Equal(t, int64(9), OperatorFrom(context.Background(), 9))
	assert.Equal(t, int64(3), OperatorFrom(WithOperator(context.Background(), 3), 9))
	assert.Equal(t, int64(9), OperatorFrom(WithOperator(context.Background(), 0), 9))
}

func TestChatService_SendIgnoresInvalidInput(t *testing.T) {
	svc, tr, _ := newTestService(t, &fakeAPI{})
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, 1, ""))
	require.NoError(t, svc.Send(ctx, 1, "   \n\t"))
	require.NoError(t, svc.Send(ctx, 0, "hello"))
	assert.Empty(t, tr.sentMessages())

	require.NoError(t, svc.Send(ctx, 4, "your order has shipped"))
	assert.Equal(t, []model.OutboundMessage{{
		SenderID:       operatorID,
		Content:        "your order has shipped",
		ConversationID: 4,
	}}, tr.sentMessages())
}

func TestValidateSend(t *testing.T) {
	assert.ErrorIs(t, validateSend(0, "x"), model.ErrValidation)
	assert.ErrorIs(t, validateSend(1, " "), model.ErrValidation)
	assert.NoError(t, validateSend(1, "x"))
}

func TestChatService_SelectConfirmed(t *testing.T) {
	api := &fakeAPI{}
	svc, _, st := newTestService(t, api)
	ctx := context.Background()

	c := customerConv(1, 1, 2)
	c.MessageList = append(c.MessageList, model.Message{ID: 3, SenderID: operatorID})
	require.NoError(t, st.ReplaceAll(ctx, []model.Conversation{c, customerConv(2, 4)}))

	outcome, err := svc.Select(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.Equal(t, []int64{1}, api.markCalls)

	got, _ := svc.Conversation(1)
	assert.True(t, got.MessageList[0].Read)
	assert.True(t, got.MessageList[1].Read)
	assert.False(t, got.MessageList[2].Read, "operator's own message is left alone")

	other, _ := svc.Conversation(2)
	assert.False(t, other.MessageList[0].Read)
	assert.Zero(t, api.fetches())
}

func TestChatService_SelectFailureReloadsAuthoritativeState(t *testing.T) {
	api := &fakeAPI{
		convs:   []model.Conversation{customerConv(1, 1)},
		markErr: &model.RemoteCallError{Op: "mark_read", RespCode: "004"},
	}
	svc, _, st := newTestService(t, api)
	ctx := context.Background()
	require.NoError(t, st.ReplaceAll(ctx, []model.Conversation{customerConv(1, 1)}))

	outcome, err := svc.Select(ctx, 1)

	var re *model.RemoteCallError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, 1, api.fetches())

	got, _ := svc.Conversation(1)
	assert.False(t, got.MessageList[0].Read, "optimistic flag replaced by server state")
}

func TestChatService_SelectFailureWithFailedReload(t *testing.T) {
	api := &fakeAPI{
		markErr:  errors.New("network down"),
		fetchErr: errors.New("network down"),
	}
	svc, _, st := newTestService(t, api)
	ctx := context.Background()
	require.NoError(t, st.ReplaceAll(ctx, []model.Conversation{customerConv(1, 1)}))

	outcome, err := svc.Select(ctx, 1)
	assert.Error(t, err)
	assert.Equal(t, OutcomeUnreconciled, outcome)

	got, _ := svc.Conversation(1)
	assert.True(t, got.MessageList[0].Read)
}

func TestChatService_SelectIgnoresMissingConversation(t *testing.T) {
	api := &fakeAPI{}
	svc, _, _ := newTestService(t, api)

	outcome, err := svc.Select(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.Empty(t, api.markCalls)
}

func TestChatService_CompletionAfterCloseIsNoop(t *testing.T) {
	api := &fakeAPI{
		convs:       []model.Conversation{customerConv(1, 1)},
		markErr:     errors.New("timeout"),
		markStarted: make(chan struct{}),
		markGate:    make(chan struct{}),
	}
	svc, _, st := newTestService(t, api)
	require.NoError(t, st.ReplaceAll(context.Background(), []model.Conversation{customerConv(1, 1)}))

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := svc.Select(context.Background(), 1)
		done <- result{o, err}
	}()

	<-api.markStarted
	svc.Close()
	close(api.markGate)

	select {
	case r := <-done:
		assert.Equal(t, OutcomeDiscarded, r.outcome)
		assert.Error(t, r.err)
	case <-time.After(time.Second):
		t.Fatal("select did not complete")
	}

	got, _ := st.Get(1)
	assert.True(t, got.MessageList[0].Read, "last snapshot survives teardown")
}

func TestChatService_PageDefaults(t *testing.T) {
	svc, _, st := newTestService(t, &fakeAPI{})
	ctx := context.Background()

	batch := make([]model.Conversation, 12)
	for i := range batch {
		batch[i] = customerConv(int64(i+1), int64(i+1))
	}
	require.NoError(t, st.ReplaceAll(ctx, batch))

	first := svc.Page(context.Background(), model.PageRequest{})
	assert.Len(t, first.Conversations, 5)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 12, first.Total)

	assert.Len(t, svc.Page(context.Background(), model.PageRequest{PageIndex: 3}).Conversations, 2)
	assert.Empty(t, svc.Page(context.Background(), model.PageRequest{PageIndex: 4}).Conversations)
}
