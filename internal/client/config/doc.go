// Package config loads runtime configuration for wikictl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the admin gRPC endpoint
//	-t int      per-call timeout (seconds)
//	-k string   file holding the admin access token
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "timeout": "10s",
//	  "token_file": "/home/me/.config/wikictl/token"
//	}
package config
