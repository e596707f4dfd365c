package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/mirror"
)

// DelOptions holds flags for the del command.
type DelOptions struct {
	*RootOptions
	Bucket string
}

// DelResult holds the del command result.
type DelResult struct {
	Key      string `json:"key"`
	Revision uint64 `json:"revision"`
}

// String renders the text form.
func (r DelResult) String() string {
	return fmt.Sprintf("%s deleted @ revision %d", r.Key, r.Revision)
}

// NewDelCommand creates the del command.
func NewDelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DelOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Long: `Write a delete tombstone for a key. Prior revisions stay in history.

Examples:
  twinview del loc.temp --bucket twin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDel(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")

	return cmd
}

func runDel(opts *DelOptions, cmd *cobra.Command, key string) error {
	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	name, err := sess.bucketName(opts.Bucket)
	if err != nil {
		return err
	}

	m, err := mirror.New(sess.store, name, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "bad mirror configuration", err)
	}

	ctx, cancel := sess.opCtx()
	defer cancel()

	if err := m.Init(ctx); err != nil {
		return WrapExitError(ExitFailure, "init failed", err)
	}
	defer m.Stop()
	if !m.Exists() {
		return NewExitError(ExitFailure, "bucket does not exist")
	}

	rev, err := m.Delete(ctx, key)
	if err != nil {
		if mirror.IsValidation(err) {
			return WrapExitError(ExitCommandError, "invalid input", err)
		}
		return WrapExitError(ExitFailure, "delete failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(DelResult{Key: key, Revision: rev})
}
