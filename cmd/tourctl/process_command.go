package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/tourpipe/internal/ingestion"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <key>",
		Short: "Run ingestion for an uploaded archive",
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

			res := components.Ingestion.Process(cmd.Context(), ingestion.UploadEvent{Bucket: bucket, Key: args[0]}, uuid.NewString())
			if ctx.jsonOutput {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				printProcessingResult(cmd, res)
			}
			if res.Status == ingestion.StatusSucceeded || res.Status == ingestion.StatusSkipped {
				return nil
			}
			return fmt.Errorf("ingestion %s: %s", res.Status, res.Message)
		},
	}
}

func printProcessingResult(cmd *cobra.Command, res *ingestion.ProcessingResult) {
	out := cmd.OutOrStdout()
	if res.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", res.SourceKey, res.Message)
		return
	}
	fmt.Fprintln(out, res.Message)
	if res.FilesExtracted > 0 {
		fmt.Fprintf(out, "  %s files, %s (%s layout) in %s\n",
			humanize.Comma(int64(res.FilesExtracted)),
			humanize.Bytes(uint64(res.TotalBytes)),
			res.Structure,
			(time.Duration(res.ProcessingTimeMs) * time.Millisecond).String(),
		)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s: %s\n", w.Path, w.Error)
	}
	if res.SourceMove.Destination != "" {
		state := "moved to"
		if !res.SourceMove.Moved {
			state = "could not be moved to"
		}
		fmt.Fprintf(out, "  source %s %s\n", state, res.SourceMove.Destination)
	}
}
