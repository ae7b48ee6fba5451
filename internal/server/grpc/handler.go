package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func recordToIdentity(r vault.Record) pb.Identity {
	return pb.Identity{
		Name:       r.Name,
		Email:      r.Email,
		ProfileURL: r.ProfileURL,
		Role:       string(r.Role),
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *GRPCServer) Ping(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {

	return &emptypb.Empty{}, nil

}

func (s *GRPCServer) AddIdentity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	in, err := pb.IdentityFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	role := vault.RoleStandard
	if in.Role != "" {
		role, err = vault.ParseRole(in.Role)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	admin, _ := administratorFromContext(ctx)
	s.logger.Info(ctx, "Add identity request", "profile_url", in.ProfileURL, "role", role, "by", admin.ProfileURL)

	record, err := s.identities.Add(ctx, vault.Identity{Name: in.Name, Email: in.Email, ProfileURL: in.ProfileURL}, role)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, status.Error(codes.AlreadyExists, "identity already exists")
		}
		var verr *vault.Error
		if errors.As(err, &verr) {
			s.logger.Error(ctx, err.Error())
			return nil, status.Error(codes.Internal, "internal error")
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Info(ctx, "Identity added", "profile_url", record.ProfileURL)
	return recordToIdentity(record).Struct(), nil

}

func (s *GRPCServer) ListIdentities(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error) {

	records := s.identities.Records()
	values := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		values = append(values, structpb.NewStructValue(recordToIdentity(r).Struct()))
	}

	return &structpb.ListValue{Values: values}, nil

}

func (s *GRPCServer) LookupIdentity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	in, err := pb.IdentityFromStruct(req)
	if err != nil || in.ProfileURL == "" {
		return nil, status.Error(codes.InvalidArgument, "profile_url is required")
	}

	record, ok := s.identities.Lookup(in.ProfileURL)
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}

	return recordToIdentity(record).Struct(), nil

}
