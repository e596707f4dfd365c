package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/twinview/twinview/internal/kv"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (key missing, bucket missing, transport fault)
	ExitCommandError = 2 // Command error (bad flags, unreadable profile, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Data   any    `json:"data,omitempty"`  // success payload
	Error  string `json:"error,omitempty"` // error message
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// entryRow is the JSON projection of one entry.
type entryRow struct {
	Key       string `json:"key"`
	Revision  uint64 `json:"revision"`
	Operation string `json:"operation"`
	Value     any    `json:"value"`
}

func toRow(e kv.Entry) entryRow {
	return entryRow{
		Key:       e.Key,
		Revision:  e.Revision,
		Operation: string(e.Operation),
		Value:     e.Value,
	}
}

// Entry renders a single entry.
func (f *OutputFormatter) Entry(e kv.Entry) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: toRow(e)})
	}
	return writeEntryTable(f.Writer, []kv.Entry{e})
}

// Entries renders a set of live entries sorted by key.
func (f *OutputFormatter) Entries(entries map[string]kv.Entry) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]kv.Entry, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, entries[k])
	}

	if f.Format == "json" {
		rows := make([]entryRow, 0, len(ordered))
		for _, e := range ordered {
			rows = append(rows, toRow(e))
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: rows})
	}
	return writeEntryTable(f.Writer, ordered)
}

// History renders a revision sequence in ascending order.
func (f *OutputFormatter) History(history []kv.Entry) error {
	if f.Format == "json" {
		rows := make([]entryRow, 0, len(history))
		for _, e := range history {
			rows = append(rows, toRow(e))
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: rows})
	}
	return writeHistoryTable(f.Writer, history)
}

func writeEntryTable(w io.Writer, entries []kv.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tREVISION\tVALUE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Key, e.Revision, renderValue(e))
	}
	return tw.Flush()
}

func writeHistoryTable(w io.Writer, history []kv.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REVISION\tOPERATION\tVALUE")
	for _, e := range history {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Revision, e.Operation, renderValue(e))
	}
	return tw.Flush()
}

// renderValue shows tombstones as a placeholder and values as their
// stored text.
func renderValue(e kv.Entry) string {
	if !e.Live() {
		return "-"
	}
	return string(e.Raw)
}
