package client

import (
	"context"

	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
)

// Client is the administration API used by wikictl.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	AddIdentity(ctx context.Context, id pb.Identity) (pb.Identity, error)
	ListIdentities(ctx context.Context) ([]pb.Identity, error)
	LookupIdentity(ctx context.Context, profileURL string) (pb.Identity, error)
}
