package config

import "path/filepath"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultBackend        = BackendOneDrive
	defaultTenant         = "common"
	defaultDriveID        = "default"
	defaultNodePort       = 9095
	defaultPollInterval   = "100ms"
	defaultMaxWait        = "5m"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	tokenFileName         = "token.json"
	journalFileName       = "journal.db"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep
// their defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: defaultBackend,
		OneDrive: OneDriveConfig{
			Tenant:  defaultTenant,
			DriveID: defaultDriveID,
		},
		Jobs: JobsConfig{
			PollInterval: defaultPollInterval,
			MaxWait:      defaultMaxWait,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
		},
	}
}

// applyImplicitDefaults fills values that cannot be preset before
// decoding: per-node ports and paths under the data directory.
func applyImplicitDefaults(cfg *Config) {
	for i := range cfg.IPFS.Nodes {
		if cfg.IPFS.Nodes[i].Port == 0 {
			cfg.IPFS.Nodes[i].Port = defaultNodePort
		}
	}

	dataDir := DefaultDataDir()
	if dataDir == "" {
		return
	}

	if cfg.OneDrive.TokenFile == "" {
		cfg.OneDrive.TokenFile = filepath.Join(dataDir, tokenFileName)
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(dataDir, journalFileName)
	}
}
