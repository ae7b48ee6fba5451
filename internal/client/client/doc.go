// Package client talks to the wiki's gRPC administration endpoint.
//
// GRPCClient manages the connection, attaches the admin access token to
// every call through a unary interceptor and maps gRPC status codes to the
// sentinel errors in errors.go, so callers can match them with errors.Is.
//
// Tokens are short lived and are not refreshed: an expired token surfaces as
// ErrTokenExpired and a new one has to be requested from the wiki's
// /meta/admin-token page.
package client
