package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"apodpipe/internal/warehouse"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List rows stored in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			wh, err := warehouse.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer wh.Close()
			if err := wh.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			total, err := wh.Count(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := wh.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No records in %s\n", wh.Table())
				return nil
			}

			tableRows := make([][]string, 0, len(rows))
			for _, row := range rows {
				copyright := row.Copyright
				if copyright == "" {
					copyright = "-"
				}
				tableRows = append(tableRows, []string{
					strconv.FormatInt(row.ID, 10),
					row.Date,
					truncate(row.Title, 48),
					row.MediaType,
					truncate(copyright, 24),
					row.IngestionTimestamp,
				})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"ID", "Date", "Title", "Media", "Copyright", "Ingested"},
				aligns:  []columnAlignment{alignRight},
				caption: fmt.Sprintf("%d of %d rows in %s (%s)", len(rows), total, wh.Table(), wh.Driver()),
			}, tableRows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of rows to show (0 for all)")
	return cmd
}
