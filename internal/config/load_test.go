package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
backend = "ipfs"

[onedrive]
client_id = "00000000-aaaa-bbbb-cccc-000000000000"
tenant = "consumers"
drive_id = "abc123"
token_file = "/tmp/hivedrive/token.json"

[ipfs]
uid = "alice"
publish_key = "alice-key"

[[ipfs.nodes]]
ipv4 = "127.0.0.1"

[[ipfs.nodes]]
ipv4 = "10.0.0.7"
ipv6 = "fd00::7"
port = 5001

[jobs]
poll_interval = "250ms"
max_wait = "1m"

[logging]
log_level = "debug"
log_format = "json"

[network]
connect_timeout = "30s"
user_agent = "hivedrive-test/1.0"

[journal]
path = "/tmp/hivedrive/journal.db"

[metrics]
textfile = "/var/lib/node_exporter/hivedrive.prom"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendIPFS, cfg.Backend)
	assert.Equal(t, "00000000-aaaa-bbbb-cccc-000000000000", cfg.OneDrive.ClientID)
	assert.Equal(t, "consumers", cfg.OneDrive.Tenant)
	assert.Equal(t, "abc123", cfg.OneDrive.DriveID)
	assert.Equal(t, "/tmp/hivedrive/token.json", cfg.OneDrive.TokenFile)

	assert.Equal(t, "alice", cfg.IPFS.UID)
	assert.Equal(t, "alice-key", cfg.IPFS.PublishKey)
	require.Len(t, cfg.IPFS.Nodes, 2)
	assert.Equal(t, NodeConfig{IPv4: "127.0.0.1", Port: 9095}, cfg.IPFS.Nodes[0])
	assert.Equal(t, NodeConfig{IPv4: "10.0.0.7", IPv6: "fd00::7", Port: 5001}, cfg.IPFS.Nodes[1])

	assert.Equal(t, "250ms", cfg.Jobs.PollInterval)
	assert.Equal(t, "1m", cfg.Jobs.MaxWait)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, "30s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "hivedrive-test/1.0", cfg.Network.UserAgent)
	assert.Equal(t, "/tmp/hivedrive/journal.db", cfg.Journal.Path)
	assert.Equal(t, "/var/lib/node_exporter/hivedrive.prom", cfg.Metrics.Textfile)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[logging]
log_level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
	assert.Equal(t, BackendOneDrive, cfg.Backend)
	assert.Equal(t, "5m", cfg.Jobs.MaxWait)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `backend = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
backend = "dropbox"

[logging]
log_level = "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, BackendOneDrive, cfg.Backend)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
}

func TestResolve_LayerPrecedence(t *testing.T) {
	envPath := writeTestConfig(t, `
backend = "onedrive"

[onedrive]
client_id = "env-file-client"

[ipfs]
uid = "from-file"

[[ipfs.nodes]]
ipv4 = "127.0.0.1"
`)

	cfg, path, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, envPath, path)
	assert.Equal(t, BackendOneDrive, cfg.Backend)
	assert.Equal(t, "env-file-client", cfg.OneDrive.ClientID)

	cfg, _, err = Resolve(EnvOverrides{ConfigPath: envPath, Backend: "ipfs", UID: "from-env"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, BackendIPFS, cfg.Backend)
	assert.Equal(t, "from-env", cfg.IPFS.UID)

	cfg, _, err = Resolve(EnvOverrides{ConfigPath: envPath, Backend: "ipfs"}, CLIOverrides{Backend: "onedrive"})
	require.NoError(t, err)
	assert.Equal(t, BackendOneDrive, cfg.Backend)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `backend = "bogus"`)
	cliPath := writeTestConfig(t, "[onedrive]\nclient_id = \"cli\"\n")

	cfg, path, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, path)
	assert.Equal(t, "cli", cfg.OneDrive.ClientID)
}

func TestResolve_BackendRequirements(t *testing.T) {
	path := writeTestConfig(t, "")

	_, _, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")

	_, _, err = Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{Backend: "ipfs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipfs.uid")
	assert.Contains(t, err.Error(), "ipfs.nodes")
}

func TestResolve_UnknownBackendOverride(t *testing.T) {
	path := writeTestConfig(t, "[onedrive]\nclient_id = \"c\"\n")

	_, _, err := Resolve(EnvOverrides{ConfigPath: path, Backend: "s3"}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}
