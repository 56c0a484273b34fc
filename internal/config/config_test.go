package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, BackendOneDrive, cfg.Backend)

	assert.Empty(t, cfg.OneDrive.ClientID)
	assert.Equal(t, "common", cfg.OneDrive.Tenant)
	assert.Equal(t, "default", cfg.OneDrive.DriveID)

	assert.Empty(t, cfg.IPFS.UID)
	assert.Empty(t, cfg.IPFS.Nodes)

	assert.Equal(t, "100ms", cfg.Jobs.PollInterval)
	assert.Equal(t, "5m", cfg.Jobs.MaxWait)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)

	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Empty(t, cfg.Network.UserAgent)

	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestJobsConfig_Durations(t *testing.T) {
	interval, maxWait := JobsConfig{PollInterval: "250ms", MaxWait: "2m"}.Durations()
	assert.Equal(t, 250*time.Millisecond, interval)
	assert.Equal(t, 2*time.Minute, maxWait)

	interval, maxWait = JobsConfig{PollInterval: "bogus"}.Durations()
	assert.Zero(t, interval)
	assert.Zero(t, maxWait)
}

func TestNetworkConfig_ConnectTimeoutDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, DefaultConfig().Network.ConnectTimeoutDuration())
}

func TestApplyImplicitDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := DefaultConfig()
	cfg.IPFS.Nodes = []NodeConfig{{IPv4: "127.0.0.1"}, {IPv4: "10.0.0.2", Port: 5001}}
	applyImplicitDefaults(cfg)

	assert.Equal(t, 9095, cfg.IPFS.Nodes[0].Port)
	assert.Equal(t, 5001, cfg.IPFS.Nodes[1].Port)
	assert.NotEmpty(t, cfg.OneDrive.TokenFile)
	assert.NotEmpty(t, cfg.Journal.Path)
}

func TestApplyImplicitDefaults_KeepsExplicitPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OneDrive.TokenFile = "/tmp/tok.json"
	cfg.Journal.Path = "/tmp/j.db"
	applyImplicitDefaults(cfg)

	assert.Equal(t, "/tmp/tok.json", cfg.OneDrive.TokenFile)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.Path)
}
