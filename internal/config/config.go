// Package config loads ciwatch configuration from a YAML file overlaid by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = ".ciwatch.yml"

// Config holds the application configuration.
type Config struct {
	GitHub   GitHubConfig  `yaml:"github"`
	Project  ProjectConfig `yaml:"project"`
	AutoFix  AutoFixConfig `yaml:"autoFix"`
	CI       CIConfig      `yaml:"ci"`
	DBPath   string        `yaml:"dbPath"`
	LogLevel string        `yaml:"logLevel"`
}

// GitHubConfig identifies the repository. The token is normally supplied by env.
type GitHubConfig struct {
	Token string `yaml:"token"`
	Repo  string `yaml:"repo"`
}

// ProjectConfig describes the local checkout the auto-fixer works on.
type ProjectConfig struct {
	Language       string            `yaml:"language"`
	PackageManager string            `yaml:"packageManager"`
	WorkDir        string            `yaml:"workDir"`
	VerifyCommands []string          `yaml:"verifyCommands"`
	Commands       map[string]string `yaml:"commands"` // task -> command override
	FixTimeout     time.Duration     `yaml:"fixTimeout"`
}

// AutoFixConfig is the autoFix section.
type AutoFixConfig struct {
	Enabled         bool `yaml:"enabled"`
	MaxAttempts     int  `yaml:"maxAttempts"`
	MaxChangedLines int  `yaml:"maxChangedLines"`
	RequireTests    bool `yaml:"requireTests"`
	EnableDryRun    bool `yaml:"enableDryRun"`
	CreatePR        bool `yaml:"createPR"`
	AutoMerge       bool `yaml:"autoMerge"`
}

// CIConfig is the ci section.
type CIConfig struct {
	WaitForChecks bool          `yaml:"waitForChecks"`
	FailFast      bool          `yaml:"failFast"`
	RetryFlaky    bool          `yaml:"retryFlaky"`
	MaxRetries    int           `yaml:"maxRetries"`
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	PollStrategy  string        `yaml:"pollStrategy"`
	Multiplier    float64       `yaml:"multiplier"`
	MaxInterval   time.Duration `yaml:"maxInterval"`
	NoChecksGrace time.Duration `yaml:"noChecksGrace"`
}

// Default returns the configuration used when no file and no env vars are present.
func Default() *Config {
	fix := model.DefaultAutoFixConfig()
	return &Config{
		Project: ProjectConfig{WorkDir: ".", FixTimeout: 5 * time.Minute},
		AutoFix: AutoFixConfig{
			Enabled:         true,
			MaxAttempts:     fix.MaxAttempts,
			MaxChangedLines: fix.MaxChangedLines,
			RequireTests:    fix.RequireTests,
			EnableDryRun:    fix.EnableDryRun,
			CreatePR:        fix.CreatePR,
		},
		CI: CIConfig{
			WaitForChecks: true,
			FailFast:      true,
			RetryFlaky:    false,
			MaxRetries:    model.DefaultMaxRetries,
			Timeout:       model.DefaultWaitTimeout,
			PollInterval:  5 * time.Second,
			PollStrategy:  string(model.PollExponential),
			Multiplier:    model.DefaultPollMultiplier,
			MaxInterval:   model.DefaultPollMaxInterval,
			NoChecksGrace: model.DefaultNoChecksGrace,
		},
		DBPath:   "ciwatch.db",
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies env vars:
// CIWATCH_GITHUB_TOKEN (falls back to GITHUB_TOKEN), CIWATCH_REPO,
// CIWATCH_DB_PATH, CIWATCH_LOG_LEVEL, CIWATCH_CI_TIMEOUT. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("CIWATCH_GITHUB_TOKEN"); ok {
		c.GitHub.Token = v
	} else if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if v, ok := os.LookupEnv("CIWATCH_REPO"); ok {
		c.GitHub.Repo = v
	}
	if v, ok := os.LookupEnv("CIWATCH_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("CIWATCH_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("CIWATCH_CI_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CIWATCH_CI_TIMEOUT has invalid duration %q: %w", v, err)
		}
		c.CI.Timeout = parsed
	}
	return nil
}

// Validate checks value ranges. Errors name the offending key.
func (c *Config) Validate() error {
	if c.GitHub.Repo != "" {
		parts := strings.Split(c.GitHub.Repo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("github.repo %q: expected owner/name", c.GitHub.Repo)
		}
	}
	if c.AutoFix.MaxAttempts < 1 || c.AutoFix.MaxAttempts > 5 {
		return fmt.Errorf("autoFix.maxAttempts %d: must be between 1 and 5", c.AutoFix.MaxAttempts)
	}
	if c.AutoFix.MaxChangedLines < 1 || c.AutoFix.MaxChangedLines > 10000 {
		return fmt.Errorf("autoFix.maxChangedLines %d: must be between 1 and 10000", c.AutoFix.MaxChangedLines)
	}
	if c.AutoFix.AutoMerge && !c.AutoFix.CreatePR {
		return errors.New("autoFix.autoMerge requires autoFix.createPR")
	}
	if c.CI.Timeout <= 0 {
		return fmt.Errorf("ci.timeout %s: must be positive", c.CI.Timeout)
	}
	if c.CI.PollInterval <= 0 {
		return fmt.Errorf("ci.pollInterval %s: must be positive", c.CI.PollInterval)
	}
	switch model.PollStrategyType(c.CI.PollStrategy) {
	case model.PollFixed, model.PollExponential:
	default:
		return fmt.Errorf("ci.pollStrategy %q: must be fixed or exponential", c.CI.PollStrategy)
	}
	if c.CI.Multiplier != 0 && c.CI.Multiplier < 1 {
		return fmt.Errorf("ci.multiplier %v: must be at least 1", c.CI.Multiplier)
	}
	if c.CI.MaxRetries < 0 {
		return fmt.Errorf("ci.maxRetries %d: must not be negative", c.CI.MaxRetries)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel %q: must be debug, info, warn, or error", c.LogLevel)
	}
	return nil
}

// RequireRepo returns an error when no repository is configured.
func (c *Config) RequireRepo() error {
	if c.GitHub.Repo == "" {
		return errors.New("no repository configured: set github.repo, CIWATCH_REPO, or --repo")
	}
	return nil
}

// WaitOptions builds scheduler options from the ci section.
func (c *Config) WaitOptions() model.WaitOptions {
	opts := model.WaitOptions{
		Timeout: c.CI.Timeout,
		PollStrategy: model.PollStrategy{
			Type:            model.PollStrategyType(c.CI.PollStrategy),
			InitialInterval: c.CI.PollInterval,
			Multiplier:      c.CI.Multiplier,
			MaxInterval:     c.CI.MaxInterval,
		},
		FailFast:      c.CI.FailFast,
		NoChecksGrace: c.CI.NoChecksGrace,
	}
	if c.CI.RetryFlaky {
		opts.RetryPatterns = model.DefaultRetryPatterns
		opts.MaxRetries = c.CI.MaxRetries
	}
	return opts
}

// AutoFixOptions builds the engine configuration from the autoFix section.
func (c *Config) AutoFixOptions() model.AutoFixConfig {
	return model.AutoFixConfig{
		MaxAttempts:     c.AutoFix.MaxAttempts,
		MaxChangedLines: c.AutoFix.MaxChangedLines,
		RequireTests:    c.AutoFix.RequireTests,
		EnableDryRun:    c.AutoFix.EnableDryRun,
		CreatePR:        c.AutoFix.CreatePR,
	}
}
