// Command ciwatch waits on, reports, and auto-fixes CI checks for GitHub pull requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/ciwatch/internal/config"
)

func main() {
	// Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := err.Error(); msg != "" {
				slog.Error("ciwatch failed", "error", msg)
			}
			stop()
			os.Exit(exitErr.ExitCode())
		}
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ciwatch",
		Usage: "Wait on, summarize, and auto-fix CI checks of pull requests",
		Description: `ciwatch polls a pull request's check runs and commit statuses until
they reach a terminal state, classifies failures, and repairs lint, format,
and vulnerable-dependency failures in a local checkout.

Results are written to stdout as JSON; logs go to stderr.

Example:
  ciwatch --repo owner/name wait --pr 12 --pr 13
  ciwatch fix --pr 12 --dry-run`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (default " + config.DefaultPath + " if present)",
			},
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Repository as owner/name, overrides github.repo",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path for auto-fix metrics, overrides dbPath",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn, or error",
			},
		},
		Before: func(*cli.Context) error {
			// Logs go to stderr until the config's level is known.
			setupLogging("info")
			return nil
		},
		// Suppress urfave's own error printing; main logs it.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			waitCommand(),
			statusCommand(),
			fixCommand(),
			metricsCommand(),
		},
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if v := c.String("repo"); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireRepo(); err != nil {
		return nil, err
	}

	setupLogging(cfg.LogLevel)
	slog.Debug("config loaded",
		"repo", cfg.GitHub.Repo,
		"db_path", cfg.DBPath,
		"work_dir", cfg.Project.WorkDir,
		"poll_strategy", cfg.CI.PollStrategy,
		"timeout", cfg.CI.Timeout,
	)
	if cfg.GitHub.Token == "" {
		slog.Warn("no github token configured, requests are unauthenticated")
	}
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// exitCode wraps err so main exits with code.
func exitCode(err error, code int) error {
	return cli.Exit(fmt.Sprint(err), code)
}
