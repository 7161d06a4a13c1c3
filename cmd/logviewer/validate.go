package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/tripwire/logviewer/internal/audit"
	"github.com/tripwire/logviewer/internal/config"
)

func newValidateCommand(load func() (*config.Config, error)) *cobra.Command {
	var checkAudit bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and, optionally, the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK (listen %s, base path %s, activity %s)\n",
				cfg.ListenAddr, cfg.BasePath, cfg.Activity.Driver)

			if !checkAudit {
				return nil
			}
			if cfg.AuditLog == "" {
				return errors.New("audit_log is not configured")
			}
			entries, err := audit.Verify(cfg.AuditLog)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(out, "audit log %s does not exist yet\n", cfg.AuditLog)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "audit log OK (%d entries)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkAudit, "audit", false, "Verify the hash chain of the configured audit log")

	return cmd
}
