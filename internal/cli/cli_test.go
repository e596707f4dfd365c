package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to write a local-mode profile and return its path.
func makeLocalProfile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	content := fmt.Sprintf("url: local:%s\nbucket: twin\n", filepath.Join(dir, "kv.db"))
	require.NoError(t, os.WriteFile(profile, []byte(content), 0o644))
	return profile
}

// Test helper to run a command against a profile.
func runCLI(t *testing.T, profile string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--profile", profile))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_PutGetRoundTrip(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin", "--description", "digital twin state")
	require.NoError(t, err)

	out, err := runCLI(t, profile, "put", "loc.temp", "72.5")
	require.NoError(t, err)
	assert.Contains(t, out, "revision 1")

	out, err = runCLI(t, profile, "get", "loc.temp")
	require.NoError(t, err)
	assert.Contains(t, out, "loc.temp")
	assert.Contains(t, out, "72.5")
}

func TestCLI_GetJSONFormat(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "put", "loc.cfg", `{"min":10}`, "--json")
	require.NoError(t, err)

	out, err := runCLI(t, profile, "get", "loc.cfg", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_GetMissingKey(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)

	_, err = runCLI(t, profile, "get", "never.written")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCLI_PutIntoMissingBucket(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "put", "loc.temp", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCLI_PutMalformedJSON(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)

	// Rejected at the call boundary; nothing reaches the store.
	_, err = runCLI(t, profile, "put", "loc.cfg", "{not json", "--json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = runCLI(t, profile, "get", "loc.cfg")
	require.Error(t, err, "the malformed put must not have written anything")
}

func TestCLI_HistoryAndRestore(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "put", "loc.temp", "72.5")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "put", "loc.temp", "73.0")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "del", "loc.temp")
	require.NoError(t, err)

	out, err := runCLI(t, profile, "history", "loc.temp")
	require.NoError(t, err)
	assert.Contains(t, out, "PUT")
	assert.Contains(t, out, "DEL")

	out, err = runCLI(t, profile, "history", "loc.temp", "--restore", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "revision 4")

	out, err = runCLI(t, profile, "get", "loc.temp")
	require.NoError(t, err)
	assert.Contains(t, out, "72.5")
}

func TestCLI_RestoreTombstoneRejected(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "put", "loc.temp", "1")
	require.NoError(t, err)
	_, err = runCLI(t, profile, "del", "loc.temp")
	require.NoError(t, err)

	_, err = runCLI(t, profile, "history", "loc.temp", "--restore", "2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_InvalidFormatFlag(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "get", "k", "--format", "xml")
	assert.Error(t, err)
}

func TestCLI_BucketCreateIdempotent(t *testing.T) {
	profile := makeLocalProfile(t)

	_, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)
	out, err := runCLI(t, profile, "bucket", "create", "twin")
	require.NoError(t, err)
	assert.Contains(t, out, "bucket twin ready")
}
