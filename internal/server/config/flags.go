package config

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gitwiki/internal/flagx"
)

// listValue is a comma-separated flag bound to a string slice.
type listValue struct{ target *[]string }

func (l listValue) String() string {
	if l.target == nil {
		return ""
	}
	return strings.Join(*l.target, ",")
}

func (l listValue) Set(s string) error {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l.target = out
	return nil
}

func newFlagSet(config *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to serve HTTP on")
	fs.StringVar(&config.ClientID, "client-id", config.ClientID, "externally visible base URL used as IndieAuth client_id")
	fs.Var(listValue{&config.AllowedMimeTypes}, "allowed-mime", "comma-separated non-text mime types allowed for pages")
	fs.StringVar(&config.StaticDir, "static", config.StaticDir, "static assets directory")

	fs.StringVar(&config.PagesDir, "pages", config.PagesDir, "pages working copy directory")
	fs.StringVar(&config.GitRemote, "remote", config.GitRemote, "pages repository remote URL")
	fs.StringVar(&config.GitBranch, "branch", config.GitBranch, "pages repository branch")
	fs.StringVar(&config.GitPrivateKey, "private-key", config.GitPrivateKey, "ssh private key for the remote")
	fs.StringVar(&config.GitPublicKey, "public-key", config.GitPublicKey, "ssh public key for the remote")
	fs.DurationVar(&config.SyncTimeout, "sync-timeout", config.SyncTimeout, "timeout of one fetch or push")
	fs.IntVar(&config.SyncAttempts, "sync-attempts", config.SyncAttempts, "rebase attempts per write")
	fs.IntVar(&config.PushAttempts, "push-attempts", config.PushAttempts, "fetch and push attempts")
	fs.DurationVar(&config.SyncInterval, "sync-interval", config.SyncInterval, "background sync and session sweep interval")

	fs.StringVar(&config.VaultPath, "vault", config.VaultPath, "encrypted vault file")
	fs.StringVar(&config.VaultSecretFile, "vault-secret", config.VaultSecretFile, "file holding the vault secret")
	fs.StringVar(&config.SeedName, "seed-name", config.SeedName, "bootstrap administrator name")
	fs.StringVar(&config.SeedEmail, "seed-email", config.SeedEmail, "bootstrap administrator email")
	fs.StringVar(&config.SeedURL, "seed-url", config.SeedURL, "bootstrap administrator profile URL")

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "PostgreSQL DSN for sessions (empty keeps them in memory)")
	fs.DurationVar(&config.SessionTTL, "session-ttl", config.SessionTTL, "session lifetime")

	fs.StringVar(&config.AdminGRPCAddr, "g", config.AdminGRPCAddr, "admin gRPC address (empty disables)")
	fs.StringVar(&config.AdminTokenSecret, "s", config.AdminTokenSecret, "admin token HMAC secret")

	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "escrow S3 bucket (empty disables)")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "escrow S3 base endpoint")
	fs.Var(listValue{&config.EscrowRecipients}, "escrow-recipients", "comma-separated age recipients for the vault escrow")

	fs.StringVar(&config.OTLPEndpoint, "otlp", config.OTLPEndpoint, "OTLP gRPC endpoint for traces (empty disables export)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error")
	return fs
}

// parseFlags populates Config fields from command-line flags. Only the
// flags defined here are taken from os.Args; anything else (such as -c) is
// left to other parsers. Invalid values panic.
func parseFlags(config *Config) {
	fs := newFlagSet(config)
	args := flagx.FilterArgs(os.Args[1:], flagx.Names(fs))
	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
