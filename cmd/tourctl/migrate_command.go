package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/your-org/tourpipe/internal/migration"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var opts migration.Options

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy tour folders into the tours prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			opts.Bucket = ctx.bucketName()
			if opts.Bucket == "" {
				return errors.New("no bucket configured; pass --bucket")
			}

			res, err := components.Migration.Migrate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				printMigrationResult(cmd, res)
			}
			if res.Failures > 0 {
				return fmt.Errorf("%d objects failed to migrate", res.Failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List what would be migrated without writing")
	cmd.Flags().BoolVar(&opts.DeleteSource, "delete-source", false, "Delete each legacy object after it is copied")
	return cmd
}

func printMigrationResult(cmd *cobra.Command, res migration.Result) {
	out := cmd.OutOrStdout()
	if len(res.Tours) == 0 {
		fmt.Fprintln(out, "No legacy tours found")
		return
	}
	rows := make([][]string, 0, len(res.Tours))
	for _, tr := range res.Tours {
		rows = append(rows, []string{
			tr.LegacyFolder,
			tr.TourName,
			strconv.Itoa(tr.Objects),
			strconv.Itoa(tr.Copied),
			strconv.Itoa(len(tr.Failed)),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Legacy folder", "Tour", "Objects", "Copied", "Failed"}, rows))
	if res.DryRun {
		total := 0
		for _, tr := range res.Tours {
			total += tr.Objects
		}
		fmt.Fprintf(out, "Dry run: %d tours, %s objects would be copied\n", len(res.Tours), humanize.Comma(int64(total)))
		return
	}
	fmt.Fprintf(out, "Migrated %d tours, %s objects copied\n", len(res.Tours), humanize.Comma(int64(res.ObjectsCopied)))
}
