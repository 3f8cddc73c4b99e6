package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CIWATCH_GITHUB_TOKEN", "GITHUB_TOKEN", "CIWATCH_REPO",
		"CIWATCH_DB_PATH", "CIWATCH_LOG_LEVEL", "CIWATCH_CI_TIMEOUT",
	} {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"ciwatch"}, args...))
	return out.String(), err
}

func TestMetricsCommand_ResetThenRead(t *testing.T) {
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "data", "ciwatch.db")

	out, err := runApp(t, "--repo", "owner/repo", "--db", dbPath, "--log-level", "error", "metrics", "--reset")

	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.InDelta(t, 0, doc["totalAttempts"], 0)
	assert.Contains(t, doc, "byReason")
	assert.FileExists(t, dbPath)
}

func TestMetricsCommand_NothingRecorded(t *testing.T) {
	isolateEnv(t)

	_, err := runApp(t, "--repo", "owner/repo", "--db", filepath.Join(t.TempDir(), "ciwatch.db"), "metrics")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no auto-fix metrics recorded for owner/repo")
}

func TestGlobalFlags_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing repo", []string{"metrics"}, "no repository configured"},
		{"malformed repo", []string{"--repo", "just-a-name", "metrics"}, "github.repo"},
		{"bad log level", []string{"--repo", "owner/repo", "--log-level", "loud", "metrics"}, "logLevel"},
		{"missing config file", []string{"--config", "nope.yml", "--repo", "owner/repo", "metrics"}, "nope.yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)

			_, err := runApp(t, tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFixCommand_RequiresPR(t *testing.T) {
	isolateEnv(t)

	_, err := runApp(t, "--repo", "owner/repo", "fix")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pr")
}

func TestExitCode(t *testing.T) {
	err := exitCode(assert.AnError, exitTimeout)

	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, exitTimeout, coder.ExitCode())
	assert.Equal(t, assert.AnError.Error(), err.Error())
}
