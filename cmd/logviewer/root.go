package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripwire/logviewer/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "logviewer",
		Short:         "Live log file viewer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML)")

	load := func() (*config.Config, error) {
		if strings.TrimSpace(configFlag) == "" {
			return config.Default(), nil
		}
		return config.LoadConfig(configFlag)
	}

	rootCmd.AddCommand(newServeCommand(load))
	rootCmd.AddCommand(newValidateCommand(load))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logviewer %s\n", version)
		},
	})

	return rootCmd
}
