package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BucketCreateOptions holds flags for the bucket create command.
type BucketCreateOptions struct {
	*RootOptions
	Description string
}

// BucketResult holds the bucket create result.
type BucketResult struct {
	Bucket  string `json:"bucket"`
	Created bool   `json:"created"`
}

// String renders the text form.
func (r BucketResult) String() string {
	return fmt.Sprintf("bucket %s ready", r.Bucket)
}

// NewBucketCommand creates the bucket command group.
func NewBucketCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Bucket lifecycle",
	}
	cmd.AddCommand(newBucketCreateCommand(rootOpts))
	return cmd
}

func newBucketCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BucketCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a bucket if it does not exist",
		Long: `Open-or-create a bucket. Safe to run repeatedly.

Examples:
  twinview bucket create twin --description "digital twin state"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBucketCreate(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Description, "description", "", "bucket description")

	return cmd
}

func runBucketCreate(opts *BucketCreateOptions, cmd *cobra.Command, name string) error {
	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.close()

	ctx, cancel := sess.opCtx()
	defer cancel()

	if _, err := sess.store.CreateBucket(ctx, name, opts.Description); err != nil {
		return WrapExitError(ExitFailure, "bucket create failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(BucketResult{Bucket: name, Created: true})
}
