package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/tourpipe/internal/archival"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <tour>",
		Short: "Move a published tour to the archive prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents()
			if err != nil {
				return err
			}
			bucket := ctx.bucketName()
			if bucket == "" {
				return errors.New("no bucket configured; pass --bucket")
			}

			res, err := components.Archival.Archive(cmd.Context(), archival.Request{Bucket: bucket, TourFolderName: args[0]})
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, res.Message)
				for _, key := range res.FailedKeys {
					fmt.Fprintf(out, "  failed: %s\n", key)
				}
			}
			if res.FailedCount > 0 {
				return fmt.Errorf("%d objects were not archived", res.FailedCount)
			}
			return nil
		},
	}
}
