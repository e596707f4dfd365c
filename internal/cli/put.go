package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinview/twinview/internal/mirror"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Bucket string
	JSON   bool
}

// PutResult holds the put command result.
type PutResult struct {
	Key      string `json:"key"`
	Revision uint64 `json:"revision"`
}

// String renders the text form.
func (r PutResult) String() string {
	return fmt.Sprintf("%s @ revision %d", r.Key, r.Revision)
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write a value to a key",
		Long: `Write a value, printing the revision the store assigned.

By default the value is stored as text. With --json the argument is
parsed as a JSON document first and rejected if malformed, before any
write is issued.

Examples:
  twinview put loc.temp 72.5 --bucket twin
  twinview put loc.cfg '{"min":10,"max":90}' --bucket twin --json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket name (defaults to the profile's bucket)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "parse the value as JSON before writing")

	return cmd
}

func runPut(opts *PutOptions, cmd *cobra.Command, key, raw string) error {
	var value any = raw
	if opts.JSON {
		// Malformed input is caught here, before any network round-trip.
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return WrapExitError(ExitCommandError, "value is not valid JSON", err)
		}
		value = parsed
	}

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
		return NewExitError(ExitFailure, "bucket does not exist (create it with: twinview bucket create)")
	}

	rev, err := m.Put(ctx, key, value)
	if err != nil {
		if mirror.IsValidation(err) {
			return WrapExitError(ExitCommandError, "invalid input", err)
		}
		return WrapExitError(ExitFailure, "put failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(PutResult{Key: key, Revision: rev})
}
