package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Validation range constants.
const (
	minPollInterval   = 10 * time.Millisecond
	minConnectTimeout = 1 * time.Second
	maxPort           = 65535
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(cfg.Backend)...)
	errs = append(errs, validateNodes(cfg.IPFS.Nodes)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints on the config after environment and
// CLI overrides have been applied. Settings the selected backend needs are
// only required here, because the backend itself may come from an override.
func ValidateResolved(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(cfg.Backend)...)

	switch cfg.Backend {
	case BackendOneDrive:
		if cfg.OneDrive.ClientID == "" {
			errs = append(errs, errors.New("onedrive.client_id: required for the onedrive backend"))
		}

		if cfg.OneDrive.TokenFile == "" {
			errs = append(errs, errors.New("onedrive.token_file: no default data directory, set it explicitly"))
		}
	case BackendIPFS:
		if cfg.IPFS.UID == "" {
			errs = append(errs, fmt.Errorf("ipfs.uid: required for the ipfs backend (or set %s)", EnvUID))
		}

		if len(cfg.IPFS.Nodes) == 0 {
			errs = append(errs, errors.New("ipfs.nodes: at least one node is required for the ipfs backend"))
		}
	}

	return errors.Join(errs...)
}

var validBackends = map[string]bool{
	BackendOneDrive: true,
	BackendIPFS:     true,
}

func validateBackend(backend string) []error {
	if !validBackends[backend] {
		return []error{fmt.Errorf("backend: must be one of onedrive, ipfs; got %q", backend)}
	}

	return nil
}

func validateNodes(nodes []NodeConfig) []error {
	var errs []error

	for i, n := range nodes {
		if n.IPv4 == "" && n.IPv6 == "" {
			errs = append(errs, fmt.Errorf("ipfs.nodes[%d]: needs ipv4 or ipv6", i))
		}

		if n.IPv4 != "" {
			if ip := net.ParseIP(n.IPv4); ip == nil || ip.To4() == nil {
				errs = append(errs, fmt.Errorf("ipfs.nodes[%d].ipv4: invalid IPv4 address %q", i, n.IPv4))
			}
		}

		if n.IPv6 != "" {
			if ip := net.ParseIP(n.IPv6); ip == nil || ip.To4() != nil {
				errs = append(errs, fmt.Errorf("ipfs.nodes[%d].ipv6: invalid IPv6 address %q", i, n.IPv6))
			}
		}

		if n.Port < 1 || n.Port > maxPort {
			errs = append(errs, fmt.Errorf("ipfs.nodes[%d].port: must be between 1 and %d, got %d", i, maxPort, n.Port))
		}
	}

	return errs
}

func validateJobs(j *JobsConfig) []error {
	interval, err := validateDuration("jobs.poll_interval", j.PollInterval, minPollInterval)
	if err != nil {
		return []error{err}
	}

	if _, err := validateDuration("jobs.max_wait", j.MaxWait, interval); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	if _, err := validateDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		return []error{err}
	}

	return nil
}

// validateDuration parses value and checks it against minimum.
func validateDuration(field, value string, minimum time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return 0, fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return d, nil
}
