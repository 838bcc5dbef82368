package inksocket

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrClosed             = errors.New("inksocket: connection closed")
	ErrNotConnected       = errors.New("inksocket: not connected")
	ErrThrottled          = errors.New("inksocket: send throttled")
	ErrBusy               = errors.New("inksocket: generation already in progress")
	ErrReconnectExhausted = errors.New("inksocket: reconnect attempts exhausted")
	ErrCancelled          = errors.New("inksocket: request cancelled")
	ErrNoRequest          = errors.New("inksocket: no request")
	ErrEmptyText          = errors.New("inksocket: empty text")
	ErrInvalidAction      = errors.New("inksocket: invalid action")
)

// ConnectionError represents a connection-level error.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("inksocket: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("inksocket: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError represents an error while encoding an outbound request.
type SendError struct {
	Op  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("inksocket: send %s: %v", e.Op, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// FrameError reports an inbound message that could not be decoded.
// It is never fatal to the connection.
type FrameError struct {
	Data []byte
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("inksocket: malformed frame: %v", e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("inksocket: closed with status %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("inksocket: closed with status %d", e.Code)
}

// BackendError carries the message of an error frame sent by the backend.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("inksocket: backend error: %s", e.Message)
}

// InterruptedError reports a generation request that was cut short because
// the connection went away. Err is set when the cause was a transport error
// rather than a close frame.
type InterruptedError struct {
	Code StatusCode
	Err  error
}

func (e *InterruptedError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("inksocket: connection error during generation: %v", e.Err)
	case e.Code == StatusNormalClosure:
		return "inksocket: connection closed during generation"
	default:
		return fmt.Sprintf("inksocket: connection closed abnormally during generation (status %d)", e.Code)
	}
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid option passed at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("inksocket: invalid %s: %s", e.Field, e.Reason)
}
