package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_LastMessage(t *testing.T) {
	var empty Conversation
	_, ok := empty.LastMessage()
	assert.False(t, ok)
	assert.Zero(t, empty.LastMessageID())

	c := Conversation{MessageList: []Message{{ID: 3}, {ID: 9}, {ID: 5}}}
	m, ok := c.LastMessage()
	require.True(t, ok)
	assert.Equal(t, int64(9), m.ID)
}

func TestConversation_CloneDoesNotShareMessages(t *testing.T) {
	c := Conversation{ID: 1, MessageList: []Message{{ID: 1}}}
	cp := c.Clone()
	cp.MessageList[0].Read = true

	assert.False(t, c.MessageList[0].Read)
}

func TestEnvelope_DecodeConversation(t *testing.T) {
	raw := `{"respCode":"000","data":{"id":7,"hostName":"a@b.c","hostAvatar":"x.png","readed":false,
		"messageList":[{"id":1,"senderId":3,"senderName":"a@b.c","senderRole":"ROLE_USER","content":"hi"}]}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	var c Conversation
	require.NoError(t, env.DecodeData(&c))
	assert.Equal(t, int64(7), c.ID)
	require.Len(t, c.MessageList, 1)
	assert.True(t, c.MessageList[0].SenderRole.IsCustomer())
	assert.False(t, c.MessageList[0].Read)
}

func TestEnvelope_FailureCode(t *testing.T) {
	env := Envelope{RespCode: "404", Message: "not found", Data: json.RawMessage(`{"id":1}`)}

	var c Conversation
	err := env.DecodeData(&c)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "404", de.RespCode)
	assert.Zero(t, c.ID)
}

func TestEnvelope_MissingData(t *testing.T) {
	env := Envelope{RespCode: RespCodeSuccess}
	assert.Error(t, env.DecodeData(&Conversation{}))
}

func TestErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	ce := &ConnectionError{URL: "nats://x", Err: cause}
	assert.ErrorIs(t, ce, ErrConnection)
	assert.ErrorIs(t, ce, cause)

	re := &RemoteCallError{Op: "mark read", Err: cause}
	assert.ErrorIs(t, re, cause)
	assert.Contains(t, (&RemoteCallError{Op: "fetch", RespCode: "999", StatusCode: 200}).Error(), "999")
}
