package core

import (
	"errors"
	"fmt"
)

var (
	ErrSharerConflict    = errors.New("another participant is already sharing")
	ErrPermissionDenied  = errors.New("capture permission denied")
	ErrNoSourceAvailable = errors.New("no capture source available")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrUnknownRoom       = errors.New("unknown room")
	ErrNotAMember        = errors.New("not a member of room")
	ErrNotSharer         = errors.New("not the active sharer")
	ErrNoActiveSharer    = errors.New("room has no active sharer")
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrUnknownSender     = errors.New("unknown participant")
)

// NegotiationError wraps a failure from the peer transport. It matches both
// ErrNegotiation and the underlying cause under errors.Is.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	return []error{ErrNegotiation, e.Err}
}

func NewNegotiationError(op string, err error) *NegotiationError {
	return &NegotiationError{Op: op, Err: err}
}
