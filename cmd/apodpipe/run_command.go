package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"apodpipe/internal/pipeline"
	"apodpipe/internal/record"
	"apodpipe/internal/stage"
	"apodpipe/internal/steps"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dateFlag, startFlag, endFlag, untilFlag string
	var retries int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: "Fetch the APOD entry for today (or --date, or --start/--end), load it into the\n" +
			"database and CSV file, version the CSV with DVC, and commit the metadata.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := parseRequest(dateFlag, startFlag, endFlag)
			if err != nil {
				return err
			}
			if err := pipeline.ValidateUntil(untilFlag); err != nil {
				return fmt.Errorf("--until: %w", err)
			}
			opts := pipeline.Options{Request: request, Until: untilFlag}
			if cmd.Flags().Changed("retries") {
				if retries < 0 {
					return fmt.Errorf("--retries must be >= 0")
				}
				opts.Retries = &retries
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			result, err := runner.Run(cmd.Context(), opts)
			if result != nil {
				printRunSummary(cmd.OutOrStdout(), result)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Fetch a single date (YYYY-MM-DD) instead of today")
	cmd.Flags().StringVar(&startFlag, "start", "", "Backfill range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end", "", "Backfill range end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&untilFlag, "until", "", "Stop after this step ("+strings.Join(steps.Order, ", ")+")")
	cmd.Flags().IntVar(&retries, "retries", 0, "Override pipeline.retries for this run")
	cmd.MarkFlagsMutuallyExclusive("date", "start")
	cmd.MarkFlagsMutuallyExclusive("date", "end")
	cmd.MarkFlagsRequiredTogether("start", "end")
	return cmd
}

func parseRequest(date, start, end string) (stage.Request, error) {
	var req stage.Request
	var err error
	if req.Date, err = parseDay("--date", date); err != nil {
		return stage.Request{}, err
	}
	if req.Start, err = parseDay("--start", start); err != nil {
		return stage.Request{}, err
	}
	if req.End, err = parseDay("--end", end); err != nil {
		return stage.Request{}, err
	}
	if req.IsRange() && req.End.Before(req.Start) {
		return stage.Request{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return req, nil
}

func parseDay(flag, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(record.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", flag, value)
	}
	return t, nil
}

func printRunSummary(out io.Writer, result *pipeline.Result) {
	run := result.Run
	state := result.State
	header := fmt.Sprintf("Run %s %s", run.ID, run.Status)
	if run.Step != "" {
		header += fmt.Sprintf(" (last step: %s)", run.Step)
	}
	if shouldColorize(out) {
		header = statusKindColor(runStatus(run.Status)) + header + ansiReset
	}
	fmt.Fprintln(out, header)
	if span := run.DateSpan(); span != "" {
		fmt.Fprintf(out, "  Dates:      %s\n", span)
	}
	if len(state.Records) > 0 && run.CSVRows == 0 && state.CSVPath == "" {
		fmt.Fprintf(out, "  Records:    %d transformed (not loaded)\n", len(state.Records))
	}
	if state.CSVPath != "" {
		fmt.Fprintf(out, "  Database:   %d inserted, %d already present\n", run.RowsInserted, run.RowsSkipped)
		fmt.Fprintf(out, "  CSV:        %s (%d rows)\n", state.CSVPath, run.CSVRows)
	}
	if state.MetadataPath != "" {
		fmt.Fprintf(out, "  DVC:        %s (md5 %s)\n", state.MetadataPath, run.TrackedMD5)
	}
	switch {
	case state.Committed:
		fmt.Fprintf(out, "  Commit:     %s\n", run.CommitHash)
	case state.CommitWarning != "":
		fmt.Fprintf(out, "  Commit:     skipped (%s)\n", state.CommitWarning)
	case state.MetadataPath != "" && run.Step == steps.NameCommit:
		fmt.Fprintln(out, "  Commit:     no changes")
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:      %s\n", run.ErrorMessage)
	}
	fmt.Fprintf(out, "  Duration:   %s\n", run.Duration().Round(time.Millisecond))
}
