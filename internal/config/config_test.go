package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"CIWATCH_GITHUB_TOKEN",
	"GITHUB_TOKEN",
	"CIWATCH_REPO",
	"CIWATCH_DB_PATH",
	"CIWATCH_LOG_LEVEL",
	"CIWATCH_CI_TIMEOUT",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment. t.Cleanup restores them.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ciwatch.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")

	require.NoError(t, err)
	assert.True(t, cfg.AutoFix.Enabled)
	assert.Equal(t, 2, cfg.AutoFix.MaxAttempts)
	assert.Equal(t, 1000, cfg.AutoFix.MaxChangedLines)
	assert.True(t, cfg.AutoFix.RequireTests)
	assert.False(t, cfg.AutoFix.EnableDryRun)
	assert.True(t, cfg.AutoFix.CreatePR)
	assert.True(t, cfg.CI.WaitForChecks)
	assert.True(t, cfg.CI.FailFast)
	assert.Equal(t, 30*time.Minute, cfg.CI.Timeout)
	assert.Equal(t, "exponential", cfg.CI.PollStrategy)
	assert.Equal(t, "ciwatch.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	isolateConfigEnv(t)
	path := writeConfig(t, `
github:
  repo: acme/widgets
project:
  language: typescript
  packageManager: pnpm
  verifyCommands:
    - pnpm build
    - pnpm test
  commands:
    lint-fix: pnpm lint --fix
autoFix:
  maxAttempts: 3
  createPR: false
ci:
  failFast: false
  retryFlaky: true
  timeout: 10m
  pollInterval: 2s
  pollStrategy: fixed
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", cfg.GitHub.Repo)
	assert.Equal(t, "typescript", cfg.Project.Language)
	assert.Equal(t, []string{"pnpm build", "pnpm test"}, cfg.Project.VerifyCommands)
	assert.Equal(t, "pnpm lint --fix", cfg.Project.Commands["lint-fix"])
	assert.Equal(t, 3, cfg.AutoFix.MaxAttempts)
	assert.False(t, cfg.AutoFix.CreatePR)
	assert.True(t, cfg.AutoFix.RequireTests, "unset keys keep their defaults")
	assert.False(t, cfg.CI.FailFast)
	assert.Equal(t, 10*time.Minute, cfg.CI.Timeout)
	assert.Equal(t, 2*time.Second, cfg.CI.PollInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateConfigEnv(t)
	path := writeConfig(t, "github:\n  repo: acme/widgets\ndbPath: file.db\n")
	t.Setenv("CIWATCH_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("CIWATCH_REPO", "acme/gadgets")
	t.Setenv("CIWATCH_DB_PATH", "/tmp/test.db")
	t.Setenv("CIWATCH_LOG_LEVEL", "debug")
	t.Setenv("CIWATCH_CI_TIMEOUT", "45s")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "ghp_test123", cfg.GitHub.Token)
	assert.Equal(t, "acme/gadgets", cfg.GitHub.Repo)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.CI.Timeout)
}

func TestLoad_GitHubTokenFallback(t *testing.T) {
	isolateConfigEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "ghp_fallback", cfg.GitHub.Token)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "max attempts too high", file: "autoFix:\n  maxAttempts: 6\n", wantErr: "autoFix.maxAttempts"},
		{name: "max attempts zero", file: "autoFix:\n  maxAttempts: 0\n", wantErr: "autoFix.maxAttempts"},
		{name: "max changed lines", file: "autoFix:\n  maxChangedLines: 10001\n", wantErr: "autoFix.maxChangedLines"},
		{name: "bad repo", file: "github:\n  repo: widgets\n", wantErr: "github.repo"},
		{name: "bad strategy", file: "ci:\n  pollStrategy: linear\n", wantErr: "ci.pollStrategy"},
		{name: "auto merge without PR", file: "autoFix:\n  createPR: false\n  autoMerge: true\n", wantErr: "autoFix.autoMerge"},
		{name: "bad log level", file: "logLevel: trace\n", wantErr: "logLevel"},
		{name: "malformed yaml", file: "autoFix: [\n", wantErr: "parsing"},
		{name: "bad env duration", file: "", env: map[string]string{"CIWATCH_CI_TIMEOUT": "soon"}, wantErr: "CIWATCH_CI_TIMEOUT"},
		{name: "zero env timeout", file: "", env: map[string]string{"CIWATCH_CI_TIMEOUT": "0s"}, wantErr: "ci.timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolateConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tc.file))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateConfigEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestWaitOptions(t *testing.T) {
	cfg := Default()
	cfg.CI.PollStrategy = "fixed"
	cfg.CI.PollInterval = 3 * time.Second

	opts := cfg.WaitOptions()
	assert.Equal(t, model.PollFixed, opts.PollStrategy.Type)
	assert.Equal(t, 3*time.Second, opts.PollStrategy.InitialInterval)
	assert.True(t, opts.FailFast)
	assert.Empty(t, opts.RetryPatterns, "retry patterns only with retryFlaky")

	cfg.CI.RetryFlaky = true
	cfg.CI.MaxRetries = 2
	opts = cfg.WaitOptions()
	assert.Equal(t, model.DefaultRetryPatterns, opts.RetryPatterns)
	assert.Equal(t, 2, opts.MaxRetries)
}

func TestAutoFixOptions(t *testing.T) {
	cfg := Default()
	cfg.AutoFix.EnableDryRun = true

	assert.Equal(t, model.AutoFixConfig{
		MaxAttempts:     2,
		MaxChangedLines: 1000,
		RequireTests:    true,
		EnableDryRun:    true,
		CreatePR:        true,
	}, cfg.AutoFixOptions())
}

func TestRequireRepo(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireRepo())

	cfg.GitHub.Repo = "acme/widgets"
	assert.NoError(t, cfg.RequireRepo())
}
