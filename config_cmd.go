package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/hivedrive/internal/config"
)

func newConfigCmd(cc *CLIContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cc.Flags.JSON {
				return printJSON(cmd.OutOrStdout(), cc.Cfg)
			}

			return config.RenderEffective(cc.Cfg, cc.CfgPath, cmd.OutOrStdout())
		},
	})

	return cmd
}
