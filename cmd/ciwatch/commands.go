package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	gitadapter "github.com/ericfisherdev/ciwatch/internal/adapter/driven/git"
	githubadapter "github.com/ericfisherdev/ciwatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/ciwatch/internal/adapter/driven/process"
	sqliteadapter "github.com/ericfisherdev/ciwatch/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ciwatch/internal/adapter/driven/toolchain"
	"github.com/ericfisherdev/ciwatch/internal/application"
	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// Exit codes beyond the generic 1.
const (
	exitChecksFailed = 1
	exitTimeout      = 2
)

// maxConcurrentWaits bounds the PRs polled at once by a single wait command.
const maxConcurrentWaits = 4

func waitCommand() *cli.Command {
	return &cli.Command{
		Name:  "wait",
		Usage: "Wait for pull request checks to reach a terminal state",
		Description: `Polls each PR until its checks settle and prints one result per PR.

Exits 0 when every PR succeeded, 1 when any failed, and 2 when any timed out.`,
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:     "pr",
				Usage:    "Pull request number, repeatable",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overrides ci.timeout",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "Return on the first critical failure, overrides ci.failFast",
			},
		},
		Action: runWait,
	}
}

// waitOutcome is the per-PR line of the wait command's output.
type waitOutcome struct {
	PRNumber int               `json:"prNumber"`
	Result   *model.WaitResult `json:"result,omitempty"`
	TimedOut bool              `json:"timedOut,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func runWait(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	checks := application.NewCheckStatusService(githubadapter.NewClient(cfg.GitHub.Token), cfg.GitHub.Repo)
	opts := cfg.WaitOptions()
	if c.IsSet("timeout") {
		opts.Timeout = c.Duration("timeout")
	}
	if c.IsSet("fail-fast") {
		opts.FailFast = c.Bool("fail-fast")
	}

	prs := c.IntSlice("pr")
	outcomes := make([]waitOutcome, len(prs))

	var g errgroup.Group
	g.SetLimit(maxConcurrentWaits)
	for i, pr := range prs {
		g.Go(func() error {
			prOpts := opts
			prOpts.OnProgress = func(s model.CheckSummary) {
				slog.Info("checks progress", "pr", pr, "passed", s.Passed, "failed", s.Failed, "pending", s.Pending)
			}

			outcome := waitOutcome{PRNumber: pr}
			result, err := application.NewPollScheduler(checks, pr).WaitForChecks(c.Context, prOpts)
			var timeoutErr *model.TimeoutError
			switch {
			case errors.As(err, &timeoutErr):
				outcome.TimedOut = true
				outcome.Error = err.Error()
			case err != nil:
				if ctxErr := c.Context.Err(); ctxErr != nil {
					return ctxErr
				}
				outcome.Error = err.Error()
			default:
				outcome.Result = result
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeJSON(c.App.Writer, outcomes); err != nil {
		return err
	}

	code := 0
	for _, o := range outcomes {
		switch {
		case o.TimedOut:
			code = exitTimeout
		case o.Result == nil || !o.Result.Success:
			code = max(code, exitChecksFailed)
		}
	}
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print the current aggregated check status of a pull request",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "pr",
				Usage:    "Pull request number",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			checks := application.NewCheckStatusService(githubadapter.NewClient(cfg.GitHub.Token), cfg.GitHub.Repo)
			summary, err := checks.GetDetailedCheckStatus(c.Context, c.Int("pr"))
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, summary)
		},
	}
}

func fixCommand() *cli.Command {
	return &cli.Command{
		Name:  "fix",
		Usage: "Attempt automated fixes for a pull request's failing checks",
		Description: `Reads the PR's failures (waiting for checks first when ci.waitForChecks is set)
and runs one fix per distinct error type in project.workDir. Each attempt is
rolled back unless it changes at most autoFix.maxChangedLines lines and passes
project.verifyCommands.

Exits 1 when any attempted fix did not succeed and 2 when waiting timed out.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "pr",
				Usage:    "Pull request number",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report the fix commands without running them",
			},
		},
		Action: runFix,
	}
}

func runFix(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := sqliteadapter.Open(c.Context, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	client := githubadapter.NewClient(cfg.GitHub.Token)
	runner := process.NewRunner()
	engine := application.NewAutoFixEngine(cfg.AutoFixOptions(), application.ProjectInfo{
		RepoFullName:   cfg.GitHub.Repo,
		WorkDir:        cfg.Project.WorkDir,
		Language:       cfg.Project.Language,
		PackageManager: cfg.Project.PackageManager,
		FixTimeout:     cfg.Project.FixTimeout,
	}, application.AutoFixDeps{
		VCS:      gitadapter.NewRepository(cfg.Project.WorkDir),
		Runner:   runner,
		Verifier: toolchain.NewVerifier(runner, cfg.Project.VerifyCommands, 0),
		Resolver: toolchain.NewResolver(cfg.Project.Commands),
		PRs:      client,
	})

	workflow := application.NewFixWorkflow(
		application.NewCheckStatusService(client, cfg.GitHub.Repo),
		engine,
		client,
		sqliteadapter.NewMetricsRepo(db),
		cfg.GitHub.Repo,
		application.FixWorkflowOptions{
			Enabled:       cfg.AutoFix.Enabled,
			WaitForChecks: cfg.CI.WaitForChecks,
			AutoMerge:     cfg.AutoFix.AutoMerge,
			Wait:          cfg.WaitOptions(),
		},
	)

	report, err := workflow.Run(c.Context, c.Int("pr"), c.Bool("dry-run"))
	if report != nil {
		if writeErr := writeJSON(c.App.Writer, report); writeErr != nil {
			return writeErr
		}
	}
	var timeoutErr *model.TimeoutError
	if errors.As(err, &timeoutErr) {
		return exitCode(err, exitTimeout)
	}
	if err != nil {
		return err
	}

	for _, o := range report.Outcomes {
		if !o.Result.Success {
			return cli.Exit("", exitChecksFailed)
		}
	}
	return nil
}

func metricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Print the auto-fix metrics last saved for the repository",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Replace the saved metrics with a zeroed document",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			db, err := sqliteadapter.Open(c.Context, cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					slog.Error("error closing database", "error", closeErr)
				}
			}()
			store := sqliteadapter.NewMetricsRepo(db)

			if c.Bool("reset") {
				recorder := application.NewMetricsRecorder()
				if err := store.Save(c.Context, cfg.GitHub.Repo, recorder.Export()); err != nil {
					return err
				}
				slog.Info("metrics reset", "repo", cfg.GitHub.Repo)
			}

			metrics, err := store.Latest(c.Context, cfg.GitHub.Repo)
			if err != nil {
				return err
			}
			if metrics == nil {
				return fmt.Errorf("no auto-fix metrics recorded for %s", cfg.GitHub.Repo)
			}
			return writeJSON(c.App.Writer, metrics)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
