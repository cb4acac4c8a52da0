package model

import (
	"errors"
	"fmt"
)

// ErrValidation marks a send or select rejected before any network
// effect. Callers treat it as a silent no-op.
var ErrValidation = errors.New("validation failed")

// ErrMissingID marks a conversation payload without a server-assigned ID.
var ErrMissingID = errors.New("conversation has no id")

// ErrConnection is the sentinel wrapped by every *ConnectionError.
var ErrConnection = errors.New("connection failed")

// ConnectionError reports that the transport could not be established.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// DeliveryError reports an inbound envelope with a non-success code.
type DeliveryError struct {
	RespCode string
	Detail   string
}

func (e *DeliveryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("delivery failed with code %s: %s", e.RespCode, e.Detail)
	}
	return fmt.Sprintf("delivery failed with code %s", e.RespCode)
}

// RemoteCallError reports a failed REST collaborator call, either at the
// network level (Err set) or at the application level (RespCode set).
type RemoteCallError struct {
	Op         string
	StatusCode int
	RespCode   string
	Err        error
}

func (e *RemoteCallError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.RespCode != "":
		return fmt.Sprintf("%s: response code %s (status %d)", e.Op, e.RespCode, e.StatusCode)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
