package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "HIVEDRIVE_CONFIG"
	EnvBackend = "HIVEDRIVE_BACKEND"
	EnvUID     = "HIVEDRIVE_UID"
)

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Backend:    os.Getenv(EnvBackend),
		UID:        os.Getenv(EnvUID),
	}
}
