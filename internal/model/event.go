package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RespCodeSuccess is the response code of a successful envelope.
const RespCodeSuccess = "000"

// Envelope is the response-coded wrapper used by both the broadcast
// topic and the REST collaborators.
type Envelope struct {
	RespCode string          `json:"respCode"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// OK reports whether the envelope carries a success code.
func (e *Envelope) OK() bool {
	return e.RespCode == RespCodeSuccess
}

// DecodeData unmarshals the payload of a successful envelope into v.
// A non-success envelope yields a *DeliveryError and v is left untouched.
func (e *Envelope) DecodeData(v any) error {
	if !e.OK() {
		return &DeliveryError{RespCode: e.RespCode, Detail: e.Message}
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode envelope data: %w", err)
	}
	return nil
}

// ConversationEvent is a decoded push event for one conversation.
type ConversationEvent struct {
	Subject      string
	Conversation Conversation
}

// HeartbeatEvent keeps an idle SSE connection open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
