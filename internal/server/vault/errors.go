package vault

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gitwiki/internal/common"
)

// Kind classifies vault failures.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindDecryptFailed
	KindCorrupt
	KindAlreadyExists
	KindWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindDecryptFailed:
		return "decrypt failed"
	case KindCorrupt:
		return "corrupt"
	case KindAlreadyExists:
		return "already exists"
	case KindWriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrDecryptFailed = &Error{Kind: KindDecryptFailed}
	ErrCorrupt       = &Error{Kind: KindCorrupt}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
)

// Error is returned by vault operations. Match with errors.Is against the
// Err* values, which compare by Kind.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := "vault: " + e.Kind.String()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind. AlreadyExists also matches
// common.ErrorAlreadyExists and NotFound matches common.ErrorNotFound.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	switch e.Kind {
	case KindAlreadyExists:
		return target == common.ErrorAlreadyExists
	case KindNotFound:
		return target == common.ErrorNotFound
	}
	return false
}

func newError(kind Kind, path string, format string, args ...any) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Path: path, Err: err}
}
