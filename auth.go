package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hivedrive/internal/config"
	"github.com/tonimelisma/hivedrive/internal/graph"
)

var errNotOAuthBackend = errors.New("login and logout apply to the onedrive backend only")

func newLoginCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with OneDrive using device code flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, cc)
		},
	}
}

func newLogoutCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved authentication token",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogout(cc)
		},
	}
}

func runLogin(cmd *cobra.Command, cc *CLIContext) error {
	if cc.Cfg.Backend != config.BackendOneDrive {
		return errNotOAuthBackend
	}

	od := cc.Cfg.OneDrive
	cc.Logger.Info("login started", slog.String("tenant", od.Tenant))

	_, err := graph.Login(cmd.Context(), graph.OAuthConfig(od.ClientID, od.Tenant), od.Tenant, od.TokenFile,
		func(da graph.DeviceAuth) {
			// Device code prompts are shown even with --quiet.
			fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
			fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
		}, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cc *CLIContext) error {
	if cc.Cfg.Backend != config.BackendOneDrive {
		return errNotOAuthBackend
	}

	if err := graph.Logout(cc.Cfg.OneDrive.TokenFile, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}
