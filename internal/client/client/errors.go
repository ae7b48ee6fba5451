package client

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTokenExpired  = errors.New("admin token expired, request a new one from /meta/admin-token")
	ErrForbidden     = errors.New("identity is not an administrator")
	ErrNotFound      = errors.New("identity not found")
	ErrAlreadyExists = errors.New("identity already exists")
	ErrInvalid       = errors.New("invalid request")
)
