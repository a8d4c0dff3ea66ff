package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"apodpipe/internal/notifications"
	"apodpipe/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify binaries, directories, database, and API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
			configPath := ctx.configPath
			if !ctx.configExists {
				configPath += " (not found, using defaults)"
			}
			fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("CSV file", statusInfo, cfg.Paths.CSVFile, colorize))
			fmt.Fprintln(out, renderStatusLine("Strict commit", statusInfo, yesNo(cfg.Versioning.StrictCommit), colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r.Name, checkStatus(r), r.Detail, colorize))
			}

			if notify {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Notifications", colorize))
				if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
					fmt.Fprintln(out, renderStatusLine("ntfy", statusWarn, "no topic configured", colorize))
				} else if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
					fmt.Fprintln(out, renderStatusLine("ntfy", statusError, err.Error(), colorize))
					return fmt.Errorf("test notification failed: %w", err)
				} else {
					fmt.Fprintln(out, renderStatusLine("ntfy", statusOK, "test notification sent", colorize))
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Also send a test notification")
	return cmd
}
