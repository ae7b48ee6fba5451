package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/auth"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const AdministratorKey ctxKey = "administrator"

// administratorFromContext returns the record the interceptor resolved.
func administratorFromContext(ctx context.Context) (vault.Record, bool) {
	r, ok := ctx.Value(AdministratorKey).(vault.Record)
	return r, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if info.FullMethod == pb.AdminPingFullMethodName {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	profileURL, err := auth.ProfileURLFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	// roles are re-read on every call so a token never outlives the record
	record, ok := s.identities.Lookup(profileURL)
	if !ok || !record.IsAdministrator() {
		s.logger.Warn(ctx, "admin call refused", "profile_url", profileURL, "method", info.FullMethod)
		return nil, status.Error(codes.PermissionDenied, "administrator role required")
	}

	ctx = context.WithValue(ctx, AdministratorKey, record)

	return handler(ctx, req)
}
