package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRCreator = (*Client)(nil)

// CreatePR opens a pull request from head into base.
func (c *Client) CreatePR(ctx context.Context, repoFullName string, pr model.NewPullRequest) (*model.CreatedPullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	created, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.Ptr(pr.Title),
		Head:  gh.Ptr(pr.Head),
		Base:  gh.Ptr(pr.Base),
		Body:  gh.Ptr(pr.Body),
	})
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("GitHub rejected PR %s -> %s (branch missing or PR already open): %w", pr.Head, pr.Base, err)
		}
		return nil, fmt.Errorf("creating PR on %s: %w", repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/pulls", 0, 1)

	return &model.CreatedPullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

// Compile-time interface satisfaction check.
var _ driven.PRMerger = (*Client)(nil)

// MergePR merges a pull request with the given method.
func (c *Client) MergePR(ctx context.Context, repoFullName string, number int, method string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	result, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, "", &gh.PullRequestOptions{MergeMethod: method})
	if err != nil {
		return fmt.Errorf("merging PR %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/merge", 0, 1)

	if !result.GetMerged() {
		return fmt.Errorf("PR %s#%d not merged: %s", repoFullName, number, result.GetMessage())
	}
	return nil
}
