package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress = errors.New("invalid device address")
	ErrSessionActive  = errors.New("session already active")
	ErrNotConnected   = errors.New("not connected to device")
	ErrAuthRejected   = errors.New("auth rejected")
	ErrSessionClosed  = errors.New("session closed")
)

// ConnectionError is a transport open or handshake failure.
type ConnectionError struct {
	Op  string // dial | auth | write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a recognised frame with an unusable payload.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
