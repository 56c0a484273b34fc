// Package config implements TOML configuration loading, validation, and
// override resolution for hivedrive.
//
// The config file holds one section per backend plus shared settings for
// job polling, logging, networking, the publish journal and metrics.
// Values resolve through four layers: defaults, config file, environment
// variables, CLI flags.
package config

import "time"

// Backend names accepted by the backend key.
const (
	BackendOneDrive = "onedrive"
	BackendIPFS     = "ipfs"
)

// Config is the top-level configuration structure.
type Config struct {
	Backend  string         `toml:"backend"`
	OneDrive OneDriveConfig `toml:"onedrive"`
	IPFS     IPFSConfig     `toml:"ipfs"`
	Jobs     JobsConfig     `toml:"jobs"`
	Logging  LoggingConfig  `toml:"logging"`
	Network  NetworkConfig  `toml:"network"`
	Journal  JournalConfig  `toml:"journal"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// OneDriveConfig configures the Graph backend. ClientID has no default: the
// application registration is the user's.
type OneDriveConfig struct {
	ClientID  string `toml:"client_id"`
	Tenant    string `toml:"tenant"`
	DriveID   string `toml:"drive_id"`
	TokenFile string `toml:"token_file"`
}

// IPFSConfig configures the daemon backend.
type IPFSConfig struct {
	UID        string       `toml:"uid"`
	PublishKey string       `toml:"publish_key"`
	Nodes      []NodeConfig `toml:"nodes"`
}

// NodeConfig is one candidate daemon endpoint. Either address may be empty
// but not both. A zero port means the daemon's default.
type NodeConfig struct {
	IPv4 string `toml:"ipv4"`
	IPv6 string `toml:"ipv6"`
	Port int    `toml:"port"`
}

// JobsConfig bounds asynchronous job polling.
type JobsConfig struct {
	PollInterval string `toml:"poll_interval"`
	MaxWait      string `toml:"max_wait"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// JournalConfig locates the publish journal. An empty path means the
// default under the data directory.
type JournalConfig struct {
	Path string `toml:"path"`
}

// MetricsConfig controls metrics export. An empty textfile disables it.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // HIVEDRIVE_CONFIG: override config file path
	Backend    string // HIVEDRIVE_BACKEND: backend selection
	UID        string // HIVEDRIVE_UID: daemon namespace uid
}

// CLIOverrides holds values from CLI flags. Empty means not specified.
type CLIOverrides struct {
	ConfigPath string
	Backend    string
}

// Durations returns the parsed poll interval and max wait. Values are
// validated at load time; an unparsable value yields zero, which the
// poller treats as its default.
func (j JobsConfig) Durations() (interval, maxWait time.Duration) {
	interval, _ = time.ParseDuration(j.PollInterval)
	maxWait, _ = time.ParseDuration(j.MaxWait)

	return interval, maxWait
}

// ConnectTimeoutDuration returns the parsed connect timeout.
func (n NetworkConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.ConnectTimeout)

	return d
}
