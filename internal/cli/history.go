package cli

import (
	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/mirror"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Bucket  string
	Restore uint64
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show a key's revision history",
		Long: `Print every retained revision of one key, ascending by revision.

With --restore, the named revision's value is written back as a new
put: history is append-only, so restoring creates a new top-of-chain
revision rather than rewriting the past.

Examples:
  twinview history loc.temp --bucket twin
  twinview history loc.temp --bucket twin --restore 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")
	cmd.Flags().Uint64Var(&opts.Restore, "restore", 0, "write this revision's value back as a new put")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command, key string) error {
	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	name, err := sess.bucketName(opts.Bucket)
	if err != nil {
		return err
	}

	ctx, cancel := sess.opCtx()
	defer cancel()

	if opts.Restore != 0 {
		m, err := mirror.New(sess.store, name, "")
		if err != nil {
			return WrapExitError(ExitCommandError, "bad mirror configuration", err)
		}
		if err := m.Init(ctx); err != nil {
			return WrapExitError(ExitFailure, "init failed", err)
		}
		defer m.Stop()
		if !m.Exists() {
			return NewExitError(ExitFailure, "bucket does not exist")
		}

		rev, err := m.Restore(ctx, key, opts.Restore)
		if err != nil {
			if mirror.IsValidation(err) {
				return WrapExitError(ExitCommandError, "cannot restore", err)
			}
			return WrapExitError(ExitFailure, "restore failed", err)
		}
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(PutResult{Key: key, Revision: rev})
	}

	fetcher := &mirror.Fetcher{Store: sess.store}
	history, err := fetcher.Fetch(ctx, name, key)
	if err != nil {
		if mirror.IsNotFound(err) {
			return NewExitError(ExitFailure, "bucket does not exist")
		}
		if mirror.IsValidation(err) {
			return WrapExitError(ExitCommandError, "invalid key", err)
		}
		return WrapExitError(ExitFailure, "history read failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.History(history)
}
