package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "s3" }, "backend: must be one of"},
		{"node without address", func(c *Config) { c.IPFS.Nodes = []NodeConfig{{Port: 9095}} }, "needs ipv4 or ipv6"},
		{"bad ipv4", func(c *Config) { c.IPFS.Nodes = []NodeConfig{{IPv4: "fd00::1", Port: 9095}} }, "invalid IPv4"},
		{"bad ipv6", func(c *Config) { c.IPFS.Nodes = []NodeConfig{{IPv6: "10.0.0.1", Port: 9095}} }, "invalid IPv6"},
		{"port out of range", func(c *Config) { c.IPFS.Nodes = []NodeConfig{{IPv4: "10.0.0.1", Port: 70000}} }, "port: must be between"},
		{"unparsable interval", func(c *Config) { c.Jobs.PollInterval = "soon" }, "jobs.poll_interval: invalid duration"},
		{"interval too small", func(c *Config) { c.Jobs.PollInterval = "1ms" }, "jobs.poll_interval: must be >="},
		{"max wait below interval", func(c *Config) { c.Jobs.PollInterval = "2s"; c.Jobs.MaxWait = "1s" }, "jobs.max_wait: must be >="},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "log_format"},
		{"connect timeout", func(c *Config) { c.Network.ConnectTimeout = "10ms" }, "connect_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ValidNodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPFS.Nodes = []NodeConfig{
		{IPv4: "127.0.0.1", Port: 9095},
		{IPv6: "::1", Port: 9095},
		{IPv4: "10.0.0.1", IPv6: "fd00::1", Port: 1},
	}

	assert.NoError(t, Validate(cfg))
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "s3"
	cfg.Logging.LogLevel = "trace"
	cfg.Network.ConnectTimeout = "x"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "connect_timeout")
}

func TestValidateResolved(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OneDrive.ClientID = "client"
	cfg.OneDrive.TokenFile = "/tmp/token.json"
	assert.NoError(t, ValidateResolved(cfg))

	cfg.Backend = BackendIPFS
	err := ValidateResolved(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HIVEDRIVE_UID")

	cfg.IPFS.UID = "alice"
	cfg.IPFS.Nodes = []NodeConfig{{IPv4: "127.0.0.1", Port: 9095}}
	assert.NoError(t, ValidateResolved(cfg))
}
