package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/auth"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func incomingWithToken(token string) context.Context {
	md := metadata.New(map[string]string{
		common.AccessTokenHeaderName: token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_Ping_AllowsWithoutToken(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	info := &grpc.UnaryServerInfo{FullMethod: pb.AdminPingFullMethodName}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	info := &grpc.UnaryServerInfo{FullMethod: pb.AdminListIdentitiesFullMethodName}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_InvalidAndExpiredToken(t *testing.T) {
	s := newTestServer(newFakeIdentities())
	info := &grpc.UnaryServerInfo{FullMethod: pb.AdminAddIdentityFullMethodName}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(incomingWithToken("not-a-valid-jwt"), nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "invalid token" {
		t.Fatalf("expected Unauthenticated invalid token, got %v", err)
	}

	expired, err := auth.GenerateToken(adminURL, []byte(testSecret), -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	_, err = s.accessTokenInterceptor(incomingWithToken(expired), nil, info, h)
	if status.Code(err) != codes.Unauthenticated || status.Convert(err).Message() != "token expired" {
		t.Fatalf("expected Unauthenticated token expired, got %v", err)
	}
}

func TestInterceptor_RequiresAdministrator(t *testing.T) {
	s := newTestServer(newFakeIdentities())
	info := &grpc.UnaryServerInfo{FullMethod: pb.AdminListIdentitiesFullMethodName}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	for _, url := range []string{standardURL, "https://unknown.example/"} {
		tok, err := auth.GenerateToken(url, []byte(testSecret), time.Hour)
		if err != nil {
			t.Fatalf("GenerateToken error: %v", err)
		}
		_, err = s.accessTokenInterceptor(incomingWithToken(tok), nil, info, h)
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("%s: expected PermissionDenied, got %v", url, status.Code(err))
		}
	}
}

func TestInterceptor_ValidToken_SetsAdministrator(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	token, err := auth.GenerateToken(adminURL, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: pb.AdminListIdentitiesFullMethodName}

	var got vault.Record
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = administratorFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(incomingWithToken(token), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got.ProfileURL != adminURL {
		t.Fatalf("administrator not propagated in context: got %q want %q", got.ProfileURL, adminURL)
	}
}
