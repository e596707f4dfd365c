package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinview/twinview/internal/kv"
)

// Test helper to build an entry with a decoded value.
func makeEntry(key string, rev uint64, raw string, op kv.Operation) kv.Entry {
	return kv.Entry{
		Key:       key,
		Raw:       []byte(raw),
		Value:     kv.Decode([]byte(raw)),
		Revision:  rev,
		Operation: op,
		Created:   time.Unix(0, 0),
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
}

func TestOutput_EntriesText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	entries := map[string]kv.Entry{
		"loc.temp": makeEntry("loc.temp", 12, `{"c":22.5}`, kv.OpPut),
		"loc.hum":  makeEntry("loc.hum", 3, "41", kv.OpPut),
	}
	require.NoError(t, f.Entries(entries))

	newGoldie(t).Assert(t, "entries_text", buf.Bytes())
}

func TestOutput_EntriesJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	entries := map[string]kv.Entry{
		"loc.temp": makeEntry("loc.temp", 12, `{"c":22.5}`, kv.OpPut),
		"loc.hum":  makeEntry("loc.hum", 3, "41", kv.OpPut),
	}
	require.NoError(t, f.Entries(entries))

	newGoldie(t).Assert(t, "entries_json", buf.Bytes())
}

func TestOutput_HistoryText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	history := []kv.Entry{
		makeEntry("loc.temp", 1, "72.5", kv.OpPut),
		makeEntry("loc.temp", 2, "73.0", kv.OpPut),
		makeEntry("loc.temp", 3, "", kv.OpDelete),
	}
	require.NoError(t, f.History(history))

	newGoldie(t).Assert(t, "history_text", buf.Bytes())
}

func TestExitError_Codes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flags")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "boom", assert.AnError)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

func TestExitError_Unwrap(t *testing.T) {
	err := WrapExitError(ExitFailure, "outer", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "outer")
}
