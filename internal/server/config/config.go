// Package config handles configuration for the wiki server,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"errors"
	"time"
)

// Config holds runtime settings for the wiki server.
//
// Fields are grouped by the component that consumes them:
//   - ListenAddr, ClientID, StaticDir: HTTP surface and login handshake.
//   - Pages* and Git*: the content store working copy and its remote.
//   - Vault*, Seed*: the credential vault and its bootstrap administrator.
//   - DatabaseDSN, SessionTTL, HandshakeTTL: sessions. An empty DSN keeps
//     sessions in memory.
//   - Admin*: the gRPC administration endpoint. An empty address disables it.
//   - S3*, EscrowRecipients: encrypted vault escrow. An empty bucket disables it.
type Config struct {
	ListenAddr       string
	ClientID         string
	AllowedMimeTypes []string
	StaticDir        string

	PagesDir          string
	GitRemote         string
	GitBranch         string
	GitPrivateKey     string
	GitPublicKey      string
	GitCommitterName  string
	GitCommitterEmail string
	SyncTimeout       time.Duration
	SyncAttempts      int
	PushAttempts      int
	PushRetryInterval time.Duration
	SyncInterval      time.Duration

	VaultPath       string
	VaultSecretFile string
	SeedName        string
	SeedEmail       string
	SeedURL         string

	DatabaseDSN  string
	SessionTTL   time.Duration
	HandshakeTTL time.Duration

	AdminGRPCAddr    string
	AdminTokenSecret string
	AdminTokenTTL    time.Duration

	S3RootUser       string
	S3RootPassword   string
	S3Bucket         string
	S3Region         string
	S3BaseEndpoint   string
	EscrowRecipients []string

	OTLPEndpoint string
	LogLevel     string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the admin token secret is empty on purpose; Validate rejects an
// enabled admin endpoint without one.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":3000"
	c.ClientID = "http://localhost:3000"
	c.AllowedMimeTypes = []string{}
	c.StaticDir = "static"

	c.PagesDir = "pages"
	c.GitBranch = "main"
	c.GitCommitterName = "gitwiki"
	c.GitCommitterEmail = "gitwiki@localhost"
	c.SyncTimeout = 30 * time.Second
	c.SyncAttempts = 3
	c.PushAttempts = 5
	c.PushRetryInterval = 500 * time.Millisecond
	c.SyncInterval = time.Minute

	c.VaultPath = "vault.bin"
	c.VaultSecretFile = "vault.secret"

	c.SessionTTL = 7 * 24 * time.Hour
	c.HandshakeTTL = 10 * time.Minute

	c.AdminGRPCAddr = ""
	c.AdminTokenTTL = 15 * time.Minute

	c.S3Region = "us-east-1"
	c.LogLevel = "info"
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return errors.New("config: listen address must be set")
	case c.ClientID == "":
		return errors.New("config: client id must be set")
	case c.PagesDir == "":
		return errors.New("config: pages directory must be set")
	case c.GitBranch == "":
		return errors.New("config: git branch must be set")
	case c.VaultPath == "" || c.VaultSecretFile == "":
		return errors.New("config: vault path and secret file must be set")
	case c.SeedURL == "" || c.SeedName == "":
		return errors.New("config: seed administrator name and url must be set")
	case c.GitPublicKey != "" && c.GitPrivateKey == "":
		return errors.New("config: git public key given without a private key")
	case c.AdminGRPCAddr != "" && c.AdminTokenSecret == "":
		return errors.New("config: admin token secret must be set when the admin endpoint is enabled")
	case c.S3Bucket != "" && len(c.EscrowRecipients) == 0:
		return errors.New("config: escrow recipients must be set when an escrow bucket is configured")
	case c.SyncAttempts < 1 || c.PushAttempts < 1:
		return errors.New("config: sync and push attempts must be positive")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
