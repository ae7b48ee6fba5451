package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/dmitrijs2005/gitwiki/internal/server/auth"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	adminURL    = "https://callym.com/"
	standardURL = "https://friend.example/"
	testSecret  = "super-secret"
)

type fakeIdentities struct {
	mu      sync.Mutex
	records []vault.Record
	addErr  error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{records: []vault.Record{
		{Identity: vault.Identity{Name: "Callum", Email: "c@callym.com", ProfileURL: adminURL}, Role: vault.RoleAdministrator, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Identity: vault.Identity{Name: "Friend", ProfileURL: standardURL}, Role: vault.RoleStandard, CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}}
}

func (f *fakeIdentities) Lookup(profileURL string) (vault.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, err := common.NormalizeProfileURL(profileURL)
	if err != nil {
		return vault.Record{}, false
	}
	for _, r := range f.records {
		if r.ProfileURL == key {
			return r, true
		}
	}
	return vault.Record{}, false
}

func (f *fakeIdentities) Records() []vault.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vault.Record(nil), f.records...)
}

func (f *fakeIdentities) Add(ctx context.Context, identity vault.Identity, role vault.Role) (vault.Record, error) {
	if f.addErr != nil {
		return vault.Record{}, f.addErr
	}
	if err := identity.Validate(); err != nil {
		return vault.Record{}, err
	}
	if _, ok := f.Lookup(identity.ProfileURL); ok {
		return vault.Record{}, vault.ErrAlreadyExists
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := vault.Record{Identity: identity, Role: role, CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	f.records = append(f.records, r)
	return r, nil
}

func newTestServer(ids Identities) *GRPCServer {
	s, _ := NewGRPCServer("127.0.0.1:0", logging.Nop(), ids, testSecret)
	return s
}

func startBufServer(t *testing.T, ids Identities) pb.AdminClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := newTestServer(ids)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return pb.NewAdminClient(conn)
}

func withToken(t *testing.T, profileURL string) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(profileURL, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newFakeIdentities())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:99999", logging.Nop(), newFakeIdentities(), testSecret)
	if err != nil {
		t.Fatalf("NewGRPCServer error (constructor should not fail here): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestAdmin_EndToEnd(t *testing.T) {
	ids := newFakeIdentities()
	client := startBufServer(t, ids)

	_, err := client.Ping(context.Background(), &emptypb.Empty{})
	require.NoError(t, err, "ping needs no token")

	_, err = client.ListIdentities(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.ListIdentities(withToken(t, standardURL), &emptypb.Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	ctx := withToken(t, adminURL)

	added, err := client.AddIdentity(ctx, pb.Identity{Name: "New", Email: "n@new.example", ProfileURL: "HTTPS://New.Example"}.Struct())
	require.NoError(t, err)
	got, err := pb.IdentityFromStruct(added)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example/", got.ProfileURL)
	assert.Equal(t, string(vault.RoleStandard), got.Role)
	assert.Equal(t, "2024-02-01T00:00:00Z", got.CreatedAt)

	_, err = client.AddIdentity(ctx, pb.Identity{Name: "Again", ProfileURL: "https://new.example/"}.Struct())
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	list, err := client.ListIdentities(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Len(t, list.Values, 3)

	found, err := client.LookupIdentity(ctx, pb.Identity{ProfileURL: "https://new.example"}.Struct())
	require.NoError(t, err)
	got, err = pb.IdentityFromStruct(found)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)

	_, err = client.LookupIdentity(ctx, pb.Identity{ProfileURL: "https://nobody.example/"}.Struct())
	assert.Equal(t, codes.NotFound, status.Code(err))
}
