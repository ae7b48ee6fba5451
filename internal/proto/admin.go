// Package proto declares the wiki administration gRPC service. Messages are
// well-known protobuf types (structpb, emptypb), so the service descriptor
// and client stubs are written by hand instead of generated.
package proto

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const AdminServiceName = "wiki.admin.v1.Admin"

// Full method names, as seen by interceptors.
const (
	AdminPingFullMethodName           = "/" + AdminServiceName + "/Ping"
	AdminAddIdentityFullMethodName    = "/" + AdminServiceName + "/AddIdentity"
	AdminListIdentitiesFullMethodName = "/" + AdminServiceName + "/ListIdentities"
	AdminLookupIdentityFullMethodName = "/" + AdminServiceName + "/LookupIdentity"
)

// Field names of the identity struct carried in requests and responses.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldProfileURL = "profile_url"
	FieldRole       = "role"
	FieldCreatedAt  = "created_at"
)

// Identity is the client-side view of a vault record.
type Identity struct {
	Name       string
	Email      string
	ProfileURL string
	Role       string
	CreatedAt  string
}

// Struct encodes the identity. Empty fields are omitted.
func (i Identity) Struct() *structpb.Struct {
	fields := map[string]*structpb.Value{}
	set := func(k, v string) {
		if v != "" {
			fields[k] = structpb.NewStringValue(v)
		}
	}
	set(FieldName, i.Name)
	set(FieldEmail, i.Email)
	set(FieldProfileURL, i.ProfileURL)
	set(FieldRole, i.Role)
	set(FieldCreatedAt, i.CreatedAt)
	return &structpb.Struct{Fields: fields}
}

// IdentityFromStruct decodes an identity. Non-string fields are an error.
func IdentityFromStruct(s *structpb.Struct) (Identity, error) {
	var i Identity
	for k, v := range s.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Identity{}, fmt.Errorf("field %q is not a string", k)
		}
		switch k {
		case FieldName:
			i.Name = sv.StringValue
		case FieldEmail:
			i.Email = sv.StringValue
		case FieldProfileURL:
			i.ProfileURL = sv.StringValue
		case FieldRole:
			i.Role = sv.StringValue
		case FieldCreatedAt:
			i.CreatedAt = sv.StringValue
		}
	}
	return i, nil
}

// AdminServer is the server API for the Admin service.
type AdminServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	AddIdentity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListIdentities(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	LookupIdentity(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](fullMethod string, call func(AdminServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdminServiceDesc is the grpc.ServiceDesc for the Admin service.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler:    unaryHandler(AdminPingFullMethodName, AdminServer.Ping),
		},
		{
			MethodName: "AddIdentity",
			Handler:    unaryHandler(AdminAddIdentityFullMethodName, AdminServer.AddIdentity),
		},
		{
			MethodName: "ListIdentities",
			Handler:    unaryHandler(AdminListIdentitiesFullMethodName, AdminServer.ListIdentities),
		},
		{
			MethodName: "LookupIdentity",
			Handler:    unaryHandler(AdminLookupIdentityFullMethodName, AdminServer.LookupIdentity),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wiki/admin/v1/admin.proto",
}

// AdminClient is the client API for the Admin service.
type AdminClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	AddIdentity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListIdentities(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	LookupIdentity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type adminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient returns a client bound to cc.
func NewAdminClient(cc grpc.ClientConnInterface) AdminClient {
	return &adminClient{cc}
}

func (c *adminClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, AdminPingFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) AddIdentity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AdminAddIdentityFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) ListIdentities(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, AdminListIdentitiesFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) LookupIdentity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AdminLookupIdentityFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
