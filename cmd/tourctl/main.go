package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cc := newCommandContext()
	if err := execute(ctx, newRootCommand(cc), cc); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// execute runs cmd and then releases whatever components it built, including
// on failed commands, so the alert producer is flushed on every path.
func execute(ctx context.Context, cmd *cobra.Command, cc *commandContext) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := cc.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
