package config

import "time"

// Config holds runtime settings for wikictl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the wiki's gRPC admin endpoint.
//   - Timeout: deadline applied to each RPC.
//   - TokenFile: optional file holding the admin access token.
type Config struct {
	ServerEndpointAddr string
	Timeout            time.Duration
	TokenFile          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
	c.TokenFile = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
