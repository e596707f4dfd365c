package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/kv"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Bucket string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read the live value of a key",
		Long: `Read the current value of one key.

Exit codes:
  0 - Value printed
  1 - Key or bucket not found
  2 - Command error (bad profile, backend unreachable)

Examples:
  twinview get loc.temp --bucket twin
  twinview get loc.temp --bucket twin --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, key string) error {
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

	bucket, err := sess.store.Bucket(ctx, name)
	if errors.Is(err, kv.ErrBucketNotFound) {
		return NewExitError(ExitFailure, "bucket does not exist")
	}
	if err != nil {
		return WrapExitError(ExitFailure, "bucket lookup failed", err)
	}

	e, err := bucket.Get(ctx, kv.CanonicalKey(key))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return NewExitError(ExitFailure, "key not found")
	}
	if err != nil {
		return WrapExitError(ExitFailure, "get failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Entry(e)
}
