package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.AdminClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}

	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewAdminClient dials endpointURL lazily; the first RPC establishes the
// connection.
func NewAdminClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, dial...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewAdminClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx, &emptypb.Empty{}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) AddIdentity(ctx context.Context, id pb.Identity) (pb.Identity, error) {
	resp, err := s.client.AddIdentity(ctx, id.Struct())
	if err != nil {
		return pb.Identity{}, s.mapError(err)
	}
	return pb.IdentityFromStruct(resp)
}

func (s *GRPCClient) ListIdentities(ctx context.Context) ([]pb.Identity, error) {
	resp, err := s.client.ListIdentities(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}

	ids := make([]pb.Identity, 0, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("identity %d: not an object", i)
		}
		id, err := pb.IdentityFromStruct(st)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *GRPCClient) LookupIdentity(ctx context.Context, profileURL string) (pb.Identity, error) {
	req, err := structpb.NewStruct(map[string]any{pb.FieldProfileURL: profileURL})
	if err != nil {
		return pb.Identity{}, err
	}
	resp, err := s.client.LookupIdentity(ctx, req)
	if err != nil {
		return pb.Identity{}, s.mapError(err)
	}
	return pb.IdentityFromStruct(resp)
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return ErrTokenExpired
		}
		return ErrUnauthorized
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalid, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
