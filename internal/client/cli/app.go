package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/gitwiki/internal/client/client"
	"github.com/dmitrijs2005/gitwiki/internal/client/config"
)

// TokenEnv names the environment variable consulted before the token file.
const TokenEnv = "WIKICTL_TOKEN"

type connectFunc func(addr, token string) (client.Client, error)

type App struct {
	config  *config.Config
	connect connectFunc
	getenv  func(string) string
	reader  *bufio.Reader
	out     io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		connect: func(addr, token string) (client.Client, error) {
			return client.NewAdminClient(addr, token)
		},
		getenv: os.Getenv,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// token resolves the admin token: environment first, then the token file,
// then an interactive prompt.
func (a *App) token() (string, error) {
	if tok := a.getenv(TokenEnv); tok != "" {
		return tok, nil
	}
	if a.config.TokenFile != "" {
		return readTokenFile(a.config.TokenFile)
	}
	return GetToken(os.Stderr)
}

// withTimeout bounds a single RPC by the configured timeout.
func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.Timeout)
}
