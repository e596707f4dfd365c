package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/kv"
	"github.com/twinview/twinview/internal/mirror"
)

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	Bucket   string
	Filter   string
	Duration time.Duration
}

// NewMirrorCommand creates the mirror command.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Run a live mirror and print its state as it changes",
		Long: `Initialize a mirror for the configured (bucket, filter) pair, print
the snapshot, then print the map again after each applied change.

When the backend reports connectivity transitions, the mirror is
stopped on disconnect (keeping the stale map) and rebuilt from a fresh
snapshot on reconnect.

Runs until interrupted, or for --duration.

Examples:
  twinview mirror --bucket twin --filter "LOC_01.>"
  twinview mirror --bucket twin --duration 30s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "wildcard filter (defaults to the profile's filter)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 = run until interrupted)")

	return cmd
}

func runMirror(opts *MirrorOptions, cmd *cobra.Command) error {
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

	m, err := mirror.New(sess.store, name, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad mirror configuration", err)
	}

	initCtx, cancelInit := sess.opCtx()
	err = m.Init(initCtx)
	cancelInit()
	if err != nil {
		return WrapExitError(ExitFailure, "init failed", err)
	}
	defer m.Stop()
	if !m.Exists() {
		return NewExitError(ExitFailure, "bucket does not exist (create it with: twinview bucket create)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	// Let the backend's connectivity feed drive stop/reinit cycles.
	if src, ok := sess.store.(kv.StatusSource); ok {
		coord := mirror.NewCoordinator(m)
		go coord.Run(ctx, src.Status())
	}

	changes, unsubscribe := m.Subscribe(64)
	defer unsubscribe()

	out := cmd.OutOrStdout()
	f := &OutputFormatter{Format: opts.Format, Writer: out}
	if err := f.Entries(m.Entries()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Kind == mirror.ChangeState {
				// State-only transitions are logged, not rendered.
				continue
			}
			fmt.Fprintln(out)
			if err := f.Entries(m.Entries()); err != nil {
				return err
			}
		}
	}
}
