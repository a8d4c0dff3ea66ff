package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"apodpipe/internal/pipeline"
	"apodpipe/internal/runlog"
)

func openLedger(ctx *commandContext) (*runlog.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return runlog.Open(cfg.RunLedgerPath())
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers:   []string{"Run", "Status", "Step", "Dates", "Inserted", "Skipped", "CSV Rows", "Commit", "Started", "Duration", "Error"},
				aligns:    []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				maxWidths: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 40},
			}, historyRows(runs)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func historyRows(runs []*runlog.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		commit := shortID(run.CommitHash)
		if commit == "" {
			commit = "-"
		}
		rows = append(rows, []string{
			shortID(run.ID),
			string(run.Status),
			run.Step,
			run.DateSpan(),
			strconv.Itoa(run.RowsInserted),
			strconv.Itoa(run.RowsSkipped),
			strconv.Itoa(run.CSVRows),
			commit,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Duration().Round(time.Second).String(),
			truncate(run.ErrorMessage, 60),
		})
	}
	return rows
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			run, err := findRun(cmd, ledger, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:          %s\n", run.ID)
			fmt.Fprintf(out, "Status:       %s\n", run.Status)
			fmt.Fprintf(out, "Step:         %s (attempt %d)\n", run.Step, run.Attempts)
			fmt.Fprintf(out, "Dates:        %s\n", run.DateSpan())
			fmt.Fprintf(out, "Rows:         %d inserted, %d skipped, %d in CSV\n", run.RowsInserted, run.RowsSkipped, run.CSVRows)
			if run.TrackedMD5 != "" {
				fmt.Fprintf(out, "Tracked MD5:  %s\n", run.TrackedMD5)
			}
			if run.CommitHash != "" {
				fmt.Fprintf(out, "Commit:       %s\n", run.CommitHash)
			}
			fmt.Fprintf(out, "Started:      %s\n", run.StartedAt.Local().Format(time.RFC3339))
			if !run.FinishedAt.IsZero() {
				fmt.Fprintf(out, "Finished:     %s\n", run.FinishedAt.Local().Format(time.RFC3339))
			}
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "Error (%s): %s\n", run.ErrorKind, run.ErrorMessage)
			}
			return nil
		},
	}
}

// findRun resolves a full run id or a unique prefix of one.
func findRun(cmd *cobra.Command, ledger *runlog.Store, id string) (*runlog.Run, error) {
	run, err := ledger.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	runs, err := ledger.List(cmd.Context(), 0)
	if err != nil {
		return nil, err
	}
	var match *runlog.Run
	for _, candidate := range runs {
		if len(id) >= 4 && strings.HasPrefix(candidate.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return match, nil
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every run from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := pipeline.AcquireLock(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			removed, err := ledger.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
}
