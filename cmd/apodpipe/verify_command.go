package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"apodpipe/internal/dvc"
	"apodpipe/internal/fileutil"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the DVC metadata matches the CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			repoCSV := filepath.Join(cfg.Paths.RepoDir, cfg.RepoCSVName())
			metadataPath := repoCSV + dvc.MetadataSuffix

			check, err := dvc.Verify(metadataPath, repoCSV)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("DVC metadata", statusError, err.Error(), colorize))
				return err
			}
			fmt.Fprintln(out, renderStatusLine("DVC metadata", statusOK,
				fmt.Sprintf("md5 %s matches %s (%d bytes)", check.Tracked.MD5, repoCSV, check.ActualSize), colorize))

			if fileutil.SamePath(cfg.Paths.CSVFile, repoCSV) {
				return nil
			}
			sourceMD5, _, err := fileutil.MD5File(cfg.Paths.CSVFile)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Source CSV", statusWarn, err.Error(), colorize))
				return nil
			}
			if sourceMD5 != check.ActualMD5 {
				fmt.Fprintln(out, renderStatusLine("Source CSV", statusWarn,
					fmt.Sprintf("%s differs from the versioned copy; run the pipeline to re-version it", cfg.Paths.CSVFile), colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("Source CSV", statusOK, "matches the versioned copy", colorize))
			return nil
		},
	}
}
