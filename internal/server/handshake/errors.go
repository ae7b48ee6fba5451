package handshake

import (
	"errors"
	"fmt"
)

// Kind classifies handshake failures. Every failure abandons the attempt.
type Kind int

const (
	// KindInvalidState: the callback nonce is unknown, already used or expired.
	KindInvalidState Kind = iota + 1
	// KindIdentityMismatch: the verified profile URL differs from the claimed one.
	KindIdentityMismatch
	// KindTimeout: the external server did not answer in time.
	KindTimeout
	// KindDiscovery: the claimed URL exposes no usable authorization endpoint.
	KindDiscovery
	// KindExchange: the code exchange was refused or returned garbage.
	KindExchange
	// KindInvalidRequest: the claimed URL or redirect target is malformed.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid state"
	case KindIdentityMismatch:
		return "identity mismatch"
	case KindTimeout:
		return "timeout"
	case KindDiscovery:
		return "discovery failed"
	case KindExchange:
		return "code exchange failed"
	case KindInvalidRequest:
		return "invalid request"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrIdentityMismatch = &Error{Kind: KindIdentityMismatch}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrDiscovery        = &Error{Kind: KindDiscovery}
	ErrExchange         = &Error{Kind: KindExchange}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
)

// Error is a handshake failure. Match with errors.Is against the Err* values.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "handshake: " + e.Kind.String()
	}
	return "handshake: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func fail(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
