package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tourctl",
		Short:         "Operate the tour pipeline against a bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.bucket, "bucket", "b", "", "Bucket to operate on (defaults to STORAGE_BUCKET)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Override APP_LOG_LEVEL")

	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newArchiveCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))

	return rootCmd
}
