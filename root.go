package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/hivedrive/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	Backend    string
	JSON       bool
	Verbose    bool
	Quiet      bool
	Reprobe    bool
}

// CLIContext is shared by every subcommand. Flags are bound at construction;
// Cfg and Logger are filled by the root pre-run.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cc := &CLIContext{}

	cmd := &cobra.Command{
		Use:     "hivedrive",
		Short:   "One drive interface over OneDrive and IPFS namespaces",
		Long:    "A CLI for hierarchical file storage on OneDrive or on an IPFS-style daemon namespace.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig(cc)
		},
	}

	cmd.PersistentFlags().StringVar(&cc.Flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&cc.Flags.Backend, "backend", "", "backend to use (onedrive or ipfs)")
	cmd.PersistentFlags().BoolVar(&cc.Flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&cc.Flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&cc.Flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&cc.Flags.Reprobe, "reprobe", false,
		"when every daemon endpoint is unreachable, probe them all again and retry once")

	cmd.AddCommand(newLoginCmd(cc))
	cmd.AddCommand(newLogoutCmd(cc))
	cmd.AddCommand(newInfoCmd(cc))
	cmd.AddCommand(newLsCmd(cc))
	cmd.AddCommand(newStatCmd(cc))
	cmd.AddCommand(newMkdirCmd(cc))
	cmd.AddCommand(newMvCmd(cc))
	cmd.AddCommand(newCpCmd(cc))
	cmd.AddCommand(newRmCmd(cc))
	cmd.AddCommand(newCatCmd(cc))
	cmd.AddCommand(newPutCmd(cc))
	cmd.AddCommand(newPublishCmd(cc))
	cmd.AddCommand(newConfigCmd(cc))

	return cmd
}

// loadConfig resolves the effective configuration and builds the logger.
func loadConfig(cc *CLIContext) error {
	cli := config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		Backend:    cc.Flags.Backend,
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc.Cfg = cfg
	cc.CfgPath = path
	cc.Logger = buildLogger(&cfg.Logging, cc.Flags)

	cc.Logger.Debug("config loaded",
		slog.String("path", path),
		slog.String("backend", cfg.Backend),
	)

	return nil
}

// buildLogger creates the stderr logger. The config file sets the baseline
// level; --verbose and --quiet override it. A nil cfg means defaults.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags) *slog.Logger {
	format := "auto"
	levelName := "info"

	if cfg != nil {
		format = cfg.LogFormat
		levelName = cfg.LogLevel
	}

	level := parseLevel(levelName)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(newLogHandler(os.Stderr, format, isatty.IsTerminal(os.Stderr.Fd()), level))
}

// newLogHandler picks text output for terminals and JSON otherwise when the
// format is "auto".
func newLogHandler(w io.Writer, format string, terminal bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		if terminal {
			return slog.NewTextHandler(w, opts)
		}

		return slog.NewJSONHandler(w, opts)
	}
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error, code int) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
