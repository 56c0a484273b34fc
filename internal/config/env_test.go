package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvBackend, "ipfs")
	t.Setenv(EnvUID, "alice")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "ipfs", overrides.Backend)
	assert.Equal(t, "alice", overrides.UID)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvUID, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "HIVEDRIVE_CONFIG", EnvConfig)
	assert.Equal(t, "HIVEDRIVE_BACKEND", EnvBackend)
	assert.Equal(t, "HIVEDRIVE_UID", EnvUID)
}
