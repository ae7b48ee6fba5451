package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gitwiki/internal/flagx"
	"github.com/dmitrijs2005/gitwiki/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Keys absent from the file keep their current value.
type JsonConfig struct {
	ListenAddr       string   `json:"listen_addr"`
	ClientID         string   `json:"client_id"`
	AllowedMimeTypes []string `json:"allowed_mime_types"`
	StaticDir        string   `json:"static_dir"`

	PagesDir          string         `json:"pages_dir"`
	GitRemote         string         `json:"git_remote"`
	GitBranch         string         `json:"git_branch"`
	GitPrivateKey     string         `json:"git_private_key"`
	GitPublicKey      string         `json:"git_public_key"`
	GitCommitterName  string         `json:"git_committer_name"`
	GitCommitterEmail string         `json:"git_committer_email"`
	SyncTimeout       timex.Duration `json:"sync_timeout"`
	SyncAttempts      int            `json:"sync_attempts"`
	PushAttempts      int            `json:"push_attempts"`
	PushRetryInterval timex.Duration `json:"push_retry_interval"`
	SyncInterval      timex.Duration `json:"sync_interval"`

	VaultPath       string `json:"vault_path"`
	VaultSecretFile string `json:"vault_secret_file"`
	SeedName        string `json:"seed_name"`
	SeedEmail       string `json:"seed_email"`
	SeedURL         string `json:"seed_url"`

	DatabaseDSN  string         `json:"database_dsn"`
	SessionTTL   timex.Duration `json:"session_ttl"`
	HandshakeTTL timex.Duration `json:"handshake_ttl"`

	AdminGRPCAddr    string         `json:"admin_grpc_addr"`
	AdminTokenSecret string         `json:"admin_token_secret"`
	AdminTokenTTL    timex.Duration `json:"admin_token_ttl"`

	S3RootUser       string   `json:"s3_root_user"`
	S3RootPassword   string   `json:"s3_root_password"`
	S3Bucket         string   `json:"s3_bucket"`
	S3Region         string   `json:"s3_region"`
	S3BaseEndpoint   string   `json:"s3_base_endpoint"`
	EscrowRecipients []string `json:"escrow_recipients"`

	OTLPEndpoint string `json:"otlp_endpoint"`
	LogLevel     string `json:"log_level"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		ListenAddr:        c.ListenAddr,
		ClientID:          c.ClientID,
		AllowedMimeTypes:  c.AllowedMimeTypes,
		StaticDir:         c.StaticDir,
		PagesDir:          c.PagesDir,
		GitRemote:         c.GitRemote,
		GitBranch:         c.GitBranch,
		GitPrivateKey:     c.GitPrivateKey,
		GitPublicKey:      c.GitPublicKey,
		GitCommitterName:  c.GitCommitterName,
		GitCommitterEmail: c.GitCommitterEmail,
		SyncTimeout:       timex.Duration{Duration: c.SyncTimeout},
		SyncAttempts:      c.SyncAttempts,
		PushAttempts:      c.PushAttempts,
		PushRetryInterval: timex.Duration{Duration: c.PushRetryInterval},
		SyncInterval:      timex.Duration{Duration: c.SyncInterval},
		VaultPath:         c.VaultPath,
		VaultSecretFile:   c.VaultSecretFile,
		SeedName:          c.SeedName,
		SeedEmail:         c.SeedEmail,
		SeedURL:           c.SeedURL,
		DatabaseDSN:       c.DatabaseDSN,
		SessionTTL:        timex.Duration{Duration: c.SessionTTL},
		HandshakeTTL:      timex.Duration{Duration: c.HandshakeTTL},
		AdminGRPCAddr:     c.AdminGRPCAddr,
		AdminTokenSecret:  c.AdminTokenSecret,
		AdminTokenTTL:     timex.Duration{Duration: c.AdminTokenTTL},
		S3RootUser:        c.S3RootUser,
		S3RootPassword:    c.S3RootPassword,
		S3Bucket:          c.S3Bucket,
		S3Region:          c.S3Region,
		S3BaseEndpoint:    c.S3BaseEndpoint,
		EscrowRecipients:  c.EscrowRecipients,
		OTLPEndpoint:      c.OTLPEndpoint,
		LogLevel:          c.LogLevel,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.ListenAddr = j.ListenAddr
	c.ClientID = j.ClientID
	c.AllowedMimeTypes = j.AllowedMimeTypes
	c.StaticDir = j.StaticDir
	c.PagesDir = j.PagesDir
	c.GitRemote = j.GitRemote
	c.GitBranch = j.GitBranch
	c.GitPrivateKey = j.GitPrivateKey
	c.GitPublicKey = j.GitPublicKey
	c.GitCommitterName = j.GitCommitterName
	c.GitCommitterEmail = j.GitCommitterEmail
	c.SyncTimeout = j.SyncTimeout.Duration
	c.SyncAttempts = j.SyncAttempts
	c.PushAttempts = j.PushAttempts
	c.PushRetryInterval = j.PushRetryInterval.Duration
	c.SyncInterval = j.SyncInterval.Duration
	c.VaultPath = j.VaultPath
	c.VaultSecretFile = j.VaultSecretFile
	c.SeedName = j.SeedName
	c.SeedEmail = j.SeedEmail
	c.SeedURL = j.SeedURL
	c.DatabaseDSN = j.DatabaseDSN
	c.SessionTTL = j.SessionTTL.Duration
	c.HandshakeTTL = j.HandshakeTTL.Duration
	c.AdminGRPCAddr = j.AdminGRPCAddr
	c.AdminTokenSecret = j.AdminTokenSecret
	c.AdminTokenTTL = j.AdminTokenTTL.Duration
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.EscrowRecipients = j.EscrowRecipients
	c.OTLPEndpoint = j.OTLPEndpoint
	c.LogLevel = j.LogLevel
}

// parseJson loads configuration values from a JSON file into config.
//
// The file path comes from the -c or -config command-line flags; without
// one nothing is loaded. The file is decoded on top of the current values,
// so it only needs the keys it changes. An unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}
