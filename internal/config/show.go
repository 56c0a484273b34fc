package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated
// summary to w. This powers "config show", giving visibility into the
// values after all override layers have been applied.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)
	ew.printf("backend = %q\n\n", cfg.Backend)

	renderOneDriveSection(ew, &cfg.OneDrive)
	renderIPFSSection(ew, &cfg.IPFS)
	renderJobsSection(ew, &cfg.Jobs)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)

	ew.printf("[journal]\n")
	ew.printf("  path = %q\n\n", cfg.Journal.Path)

	if cfg.Metrics.Textfile != "" {
		ew.printf("[metrics]\n")
		ew.printf("  textfile = %q\n", cfg.Metrics.Textfile)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderOneDriveSection(ew *errWriter, o *OneDriveConfig) {
	ew.printf("[onedrive]\n")
	ew.printf("  client_id  = %q\n", o.ClientID)
	ew.printf("  tenant     = %q\n", o.Tenant)
	ew.printf("  drive_id   = %q\n", o.DriveID)
	ew.printf("  token_file = %q\n", o.TokenFile)
	ew.printf("\n")
}

func renderIPFSSection(ew *errWriter, c *IPFSConfig) {
	ew.printf("[ipfs]\n")
	ew.printf("  uid         = %q\n", c.UID)

	if c.PublishKey != "" {
		ew.printf("  publish_key = %q\n", c.PublishKey)
	}

	for _, n := range c.Nodes {
		ew.printf("  node        = ipv4 %q, ipv6 %q, port %d\n", n.IPv4, n.IPv6, n.Port)
	}

	ew.printf("\n")
}

func renderJobsSection(ew *errWriter, j *JobsConfig) {
	ew.printf("[jobs]\n")
	ew.printf("  poll_interval = %q\n", j.PollInterval)
	ew.printf("  max_wait      = %q\n", j.MaxWait)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", n.ConnectTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", n.UserAgent)
	}

	ew.printf("\n")
}
