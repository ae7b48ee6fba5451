package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"listen_addr":         "www.example:9000",
		"client_id":           "https://wiki.example",
		"allowed_mime_types":  []string{"image/png"},
		"git_remote":          "git@example:pages.git",
		"sync_timeout":        "45s",
		"push_retry_interval": 1000000,
		"session_ttl":         "24h",
		"seed_url":            "https://me.example/",
		"escrow_recipients":   []string{"age1xyz"},
		"log_level":           "debug",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.ListenAddr)
		assert.Equal(t, "https://wiki.example", cfg.ClientID)
		assert.Equal(t, []string{"image/png"}, cfg.AllowedMimeTypes)
		assert.Equal(t, "git@example:pages.git", cfg.GitRemote)
		assert.Equal(t, 45*time.Second, cfg.SyncTimeout)
		assert.Equal(t, time.Millisecond, cfg.PushRetryInterval)
		assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
		assert.Equal(t, "https://me.example/", cfg.SeedURL)
		assert.Equal(t, []string{"age1xyz"}, cfg.EscrowRecipients)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("absent keys keep current values", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "main", cfg.GitBranch)
		assert.Equal(t, 3, cfg.SyncAttempts)
		assert.Equal(t, 10*time.Minute, cfg.HandshakeTTL)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ListenAddr: "defaults:1234", SessionTTL: 2 * time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.ListenAddr)
		assert.Equal(t, 2*time.Minute, cfg.SessionTTL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
