package grpc

import (
	"context"
	"errors"
	"testing"

	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestAddIdentity_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		req    *structpb.Struct
		addErr error
		want   codes.Code
	}{
		{
			name: "unknown role",
			req:  pb.Identity{Name: "x", ProfileURL: "https://x.example/", Role: "owner"}.Struct(),
			want: codes.InvalidArgument,
		},
		{
			name: "missing name",
			req:  pb.Identity{ProfileURL: "https://x.example/"}.Struct(),
			want: codes.InvalidArgument,
		},
		{
			name: "bad profile url",
			req:  pb.Identity{Name: "x", ProfileURL: "ftp://x.example/"}.Struct(),
			want: codes.InvalidArgument,
		},
		{
			name: "duplicate",
			req:  pb.Identity{Name: "x", ProfileURL: adminURL}.Struct(),
			want: codes.AlreadyExists,
		},
		{
			name:   "vault write failure",
			req:    pb.Identity{Name: "x", ProfileURL: "https://x.example/"}.Struct(),
			addErr: &vault.Error{Kind: vault.KindWriteFailed, Err: errors.New("disk full")},
			want:   codes.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := newFakeIdentities()
			ids.addErr = tt.addErr
			s := newTestServer(ids)

			_, err := s.AddIdentity(ctx, tt.req)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestAddIdentity_AdministratorRole(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	resp, err := s.AddIdentity(context.Background(), pb.Identity{Name: "Ops", ProfileURL: "https://ops.example/", Role: "Administrator"}.Struct())
	require.NoError(t, err)

	got, err := pb.IdentityFromStruct(resp)
	require.NoError(t, err)
	assert.Equal(t, string(vault.RoleAdministrator), got.Role)
}

func TestListIdentities_PreservesOrder(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	list, err := s.ListIdentities(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.Values, 2)

	first, err := pb.IdentityFromStruct(list.Values[0].GetStructValue())
	require.NoError(t, err)
	assert.Equal(t, adminURL, first.ProfileURL)
	assert.Equal(t, "2024-01-01T00:00:00Z", first.CreatedAt)
}

func TestLookupIdentity_RequiresProfileURL(t *testing.T) {
	s := newTestServer(newFakeIdentities())

	_, err := s.LookupIdentity(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
