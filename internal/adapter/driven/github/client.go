// Package github implements the CheckStatusSource and PRCreator ports using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CheckStatusSource = (*Client)(nil)

// Client implements the driven.CheckStatusSource port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching; unchanged refs cost no quota)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// GetPR returns the head commit and branches of a pull request.
func (c *Client) GetPR(ctx context.Context, repoFullName string, number int) (*model.PRHead, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching PR %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/pr", 0, 1)

	return &model.PRHead{
		Number: pr.GetNumber(),
		SHA:    pr.GetHead().GetSHA(),
		Ref:    pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
	}, nil
}

// ListCheckRuns retrieves all check runs for the given ref (commit SHA or branch).
// It handles pagination automatically and maps go-github types to domain model types.
func (c *Client) ListCheckRuns(ctx context.Context, repoFullName string, ref string) ([]model.CheckRun, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListCheckRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	allRuns := []model.CheckRun{}

	for {
		result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("listing check runs for %s@%s (page %d): %w", repoFullName, ref, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/check-runs", opts.Page, len(result.CheckRuns))

		for _, cr := range result.CheckRuns {
			allRuns = append(allRuns, mapCheckRun(cr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allRuns, nil
}

// GetCombinedStatus returns the individual commit statuses for the given ref.
// An empty slice means no status contexts are configured.
func (c *Client) GetCombinedStatus(ctx context.Context, repoFullName string, ref string) ([]model.CommitStatus, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	statuses := []model.CommitStatus{}

	for {
		cs, resp, err := c.gh.Repositories.GetCombinedStatus(ctx, owner, repo, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("fetching combined status for %s@%s (page %d): %w", repoFullName, ref, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/status", opts.Page, len(cs.Statuses))

		statuses = append(statuses, mapCommitStatuses(cs)...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return statuses, nil
}

// ListAnnotations returns at most limit annotations for a check run.
func (c *Client) ListAnnotations(ctx context.Context, repoFullName string, checkRunID int64, limit int) ([]model.Annotation, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: min(max(limit, 1), 100)}
	annotations := []model.Annotation{}

	for len(annotations) < limit {
		page, resp, err := c.gh.Checks.ListCheckRunAnnotations(ctx, owner, repo, checkRunID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing annotations for %s check run %d (page %d): %w", repoFullName, checkRunID, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/annotations", opts.Page, len(page))

		for _, a := range page {
			if len(annotations) == limit {
				break
			}
			annotations = append(annotations, model.Annotation{
				Path:      a.GetPath(),
				StartLine: a.GetStartLine(),
				Level:     a.GetAnnotationLevel(),
				Message:   a.GetMessage(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return annotations, nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapCheckRun converts a go-github CheckRun to a domain model CheckRun.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapCheckRun(cr *gh.CheckRun) model.CheckRun {
	var startedAt, completedAt time.Time
	if cr.StartedAt != nil {
		startedAt = cr.GetStartedAt().Time
	}
	if cr.CompletedAt != nil {
		completedAt = cr.GetCompletedAt().Time
	}

	link := cr.GetHTMLURL()
	if link == "" {
		link = cr.GetDetailsURL()
	}

	return model.CheckRun{
		ID:          cr.GetID(),
		Name:        cr.GetName(),
		Status:      cr.GetStatus(),
		Conclusion:  cr.GetConclusion(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Output: model.CheckRunOutput{
			Title:   cr.GetOutput().GetTitle(),
			Summary: cr.GetOutput().GetSummary(),
			Text:    cr.GetOutput().GetText(),
		},
		URL: link,
	}
}

// mapCommitStatuses converts the statuses of a go-github CombinedStatus.
func mapCommitStatuses(cs *gh.CombinedStatus) []model.CommitStatus {
	statuses := make([]model.CommitStatus, 0, len(cs.Statuses))
	for _, s := range cs.Statuses {
		statuses = append(statuses, model.CommitStatus{
			Context:     s.GetContext(),
			State:       s.GetState(),
			Description: s.GetDescription(),
			TargetURL:   s.GetTargetURL(),
		})
	}
	return statuses
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
