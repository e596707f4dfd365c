package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/kv"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Bucket string
	Filter string
	Count  int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change events for matching keys",
		Long: `Stream raw change events (puts, deletes, purges) as they happen.

Runs until interrupted, or until --count events have been printed.

Examples:
  twinview watch --bucket twin --filter "LOC_01.>"
  twinview watch --bucket twin --count 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "wildcard filter (defaults to the profile's filter)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many events (0 = run until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	name, err := sess.bucketName(opts.Bucket)
	if err != nil {
		return err
	}
	filter := opts.Filter
	if filter == "" {
		filter = sess.cfg.Filter
	}

	openCtx, cancelOpen := sess.opCtx()
	defer cancelOpen()

	bucket, err := sess.store.Bucket(openCtx, name)
	if errors.Is(err, kv.ErrBucketNotFound) {
		return NewExitError(ExitFailure, "bucket does not exist")
	}
	if err != nil {
		return WrapExitError(ExitFailure, "bucket lookup failed", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := bucket.Watch(ctx, filter)
	if err != nil {
		return WrapExitError(ExitFailure, "watch failed", err)
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Updates():
			if !ok {
				return NewExitError(ExitFailure, "watch stream terminated")
			}
			fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", e.Operation, e.Revision, e.Key, renderValue(e))
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				return nil
			}
		}
	}
}
