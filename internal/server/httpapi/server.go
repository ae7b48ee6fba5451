// Package httpapi is the browser-facing HTTP surface of the wiki: page views,
// the login handshake endpoints and the guarded create/edit pipeline.
package httpapi

import (
	"context"
	"errors"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/logging"
	"github.com/dmitrijs2005/gitwiki/internal/server/content"
	"github.com/dmitrijs2005/gitwiki/internal/server/handshake"
	"github.com/dmitrijs2005/gitwiki/internal/server/render"
	"github.com/dmitrijs2005/gitwiki/internal/server/sessions"
	"github.com/dmitrijs2005/gitwiki/internal/server/vault"
)

// IndexPage is where "/" redirects.
const IndexPage = "index.md"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	profileHistoryLimit = 20
	maxPageBytes        = 4 << 20
	shutdownTimeout     = 10 * time.Second
)

// Pages is the content store as seen by the router.
type Pages interface {
	Read(ctx context.Context, path string) ([]byte, error)
	ReadAt(ctx context.Context, path, revision string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Write(ctx context.Context, req content.WriteRequest) (*content.WriteResult, error)
	History(ctx context.Context, path string) iter.Seq2[content.Commit, error]
	AuthorHistory(ctx context.Context, email string, limit int) iter.Seq2[content.Commit, error]
}

// Sessions binds cookie tokens to principals.
type Sessions interface {
	Create(ctx context.Context, profileURL string) (*sessions.Session, error)
	Resolve(ctx context.Context, token string) (*sessions.Principal, bool)
	Invalidate(ctx context.Context, token string) error
	TTL() time.Duration
}

// Login runs the external authorization handshake.
type Login interface {
	Begin(ctx context.Context, claimedURL, redirectTo string) (string, error)
	Complete(ctx context.Context, nonce, code string) (*handshake.Profile, error)
	Cancel(nonce string)
}

// Directory attributes commit authors to vault identities.
type Directory interface {
	LookupEmail(email string) (vault.Record, bool)
}

// TokenIssuer mints admin access tokens for the gRPC surface.
type TokenIssuer func(profileURL string) (token string, ttl time.Duration, err error)

// Deps are the collaborators of a Server.
type Deps struct {
	Pages     Pages
	Sessions  Sessions
	Login     Login
	Directory Directory
	Renderer  *render.Renderer
	// Tokens may be nil, which disables POST /meta/admin-token.
	Tokens TokenIssuer
	// StaticDir, when set, is consulted before the page store on GET /*.
	StaticDir string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	Logger        logging.Logger
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
	handler http.Handler
}

func NewServer(address string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New("")
	}
	s := &Server{
		address: address,
		deps:    deps,
		logger:  deps.Logger.With("module", "http_server"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
