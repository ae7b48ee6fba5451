// Package grpc serves the out-of-band administration API. Every method except
// Ping requires an access token issued to a vault administrator.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gitwiki/internal/logging"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"google.golang.org/grpc"
)

// Identities is the slice of the vault the admin surface needs.
type Identities interface {
	Lookup(profileURL string) (vault.Record, bool)
	Records() []vault.Record
	Add(ctx context.Context, identity vault.Identity, role vault.Role) (vault.Record, error)
}

type GRPCServer struct {
	address    string
	identities Identities
	logger     logging.Logger
	jwtSecret  []byte
}

func NewGRPCServer(a string, l logging.Logger, ids Identities, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		identities: ids,
		jwtSecret:  []byte(secretKey),
	}, nil
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve runs the server on an existing listener until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	// registers service
	pb.RegisterAdminServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
