// Package github wraps google/go-github into the high-level
// operations hubcast's sync handlers need against a GitHub source (or
// GitHub check-run relay target): check-run statuses, raw file fetches,
// pull request listing, and comment posting.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LLNL/hubcast/pkg/hcerr"
	"github.com/google/go-github/v56/github"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

const (
	retryMinWaitDuration = 500 * time.Millisecond
	retryMaxAttempts     = 5
)

// withRetry retries fn against GitHub's primary and secondary rate
// limits with a Fibonacci backoff, making up to retryMaxAttempts
// retries after the first call and retrying only rate-limit errors.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b, err := retry.NewFibonacci(retryMinWaitDuration)
	if err != nil {
		return fmt.Errorf("failed to configure retry backoff: %w", err)
	}
	b = retry.WithMaxRetries(retryMaxAttempts, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if shouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// shouldRetry reports whether err represents a transient GitHub
// rate-limit condition worth retrying.
// See https://github.com/google/go-github#rate-limiting.
func shouldRetry(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	return errors.As(err, &rateErr) || errors.As(err, &abuseErr)
}

// Client is a repo-scoped GitHub REST client authenticated with an
// installation access token.
type Client struct {
	gh    *github.Client
	Owner string
	Repo  string
}

// New constructs a Client for owner/repo, authenticated with token.
func New(ctx context.Context, owner, repo, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &Client{gh: github.NewClient(httpClient), Owner: owner, Repo: repo}
}

// GetRawFile implements repoconfig.ContentFetcher: fetches path's raw
// content from the repo's default branch.
func (c *Client) GetRawFile(ctx context.Context, fullname, path string) ([]byte, error) {
	owner, repo := c.Owner, c.Repo
	if fullname != "" {
		owner, repo = splitFullname(fullname)
	}

	fc, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, hcerr.NewNotFoundError(fmt.Sprintf("%s not found in %s/%s", path, owner, repo), err)
		}
		return nil, hcerr.NewUpstreamError(fmt.Sprintf("failed to get %s from %s/%s", path, owner, repo), err)
	}
	if fc == nil {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), nil
}

// GetPRsForBranch returns open pull requests whose head is branch,
// used to skip a push-sync when the pushed ref is also an open PR's
// head.
func (c *Client) GetPRsForBranch(ctx context.Context, branch string) ([]*github.PullRequest, error) {
	prs, _, err := c.gh.PullRequests.List(ctx, c.Owner, c.Repo, &github.PullRequestListOptions{
		Head:  c.Owner + ":" + branch,
		State: "open",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}
	return prs, nil
}

// HasOpenPRForBranch reports whether branch is the head of an open
// pull request, used by push-sync to defer to PR-sync when both
// trigger on the same commit.
func (c *Client) HasOpenPRForBranch(ctx context.Context, branch string) (bool, error) {
	prs, err := c.GetPRsForBranch(ctx, branch)
	if err != nil {
		return false, err
	}
	return len(prs) > 0, nil
}

// GetPR fetches a single pull request by number.
func (c *Client) GetPR(ctx context.Context, number int) (*github.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, c.Owner, c.Repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get PR #%d: %w", number, err)
	}
	return pr, nil
}

// GetPRForSync implements sync.CommentPRFetcher: fetches the head
// SHA, head branch, and fork status needed to run the approve /
// run-pipeline comment commands.
func (c *Client) GetPRForSync(ctx context.Context, number int) (headSHA, headBranch string, fromFork bool, err error) {
	pr, err := c.GetPR(ctx, number)
	if err != nil {
		return "", "", false, err
	}
	fromFork = pr.GetHead().GetRepo().GetFullName() != pr.GetBase().GetRepo().GetFullName()
	return pr.GetHead().GetSHA(), pr.GetHead().GetRef(), fromFork, nil
}

// SetCheckStatus finds the check-run named checkName on sha and
// updates it, or creates a new one if absent or previously completed.
func (c *Client) SetCheckStatus(ctx context.Context, sha, checkName, status, conclusion, detailsURL string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		runs, _, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.Owner, c.Repo, sha, nil)
		if err != nil {
			return fmt.Errorf("failed to list check-runs for %s: %w", sha, err)
		}

		var existing *github.CheckRun
		for _, run := range runs.CheckRuns {
			if run.GetName() == checkName {
				existing = run
				break
			}
		}

		if existing == nil || existing.GetStatus() == "completed" {
			opts := github.CreateCheckRunOptions{
				Name:       checkName,
				HeadSHA:    sha,
				Status:     github.String(status),
				DetailsURL: github.String(detailsURL),
			}
			if conclusion != "" {
				opts.Conclusion = github.String(conclusion)
			}
			if _, _, err := c.gh.Checks.CreateCheckRun(ctx, c.Owner, c.Repo, opts); err != nil {
				return fmt.Errorf("failed to create check-run %s: %w", checkName, err)
			}
			return nil
		}

		opts := github.UpdateCheckRunOptions{
			Name:       checkName,
			Status:     github.String(status),
			DetailsURL: github.String(detailsURL),
		}
		if conclusion != "" {
			opts.Conclusion = github.String(conclusion)
		}
		if _, _, err := c.gh.Checks.UpdateCheckRun(ctx, c.Owner, c.Repo, existing.GetID(), opts); err != nil {
			return fmt.Errorf("failed to update check-run %s: %w", checkName, err)
		}
		return nil
	})
}

// PostComment adds a comment to issue/PR number.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, _, err := c.gh.Issues.CreateComment(ctx, c.Owner, c.Repo, number, &github.IssueComment{Body: &body})
		if err != nil {
			return fmt.Errorf("failed to post comment on #%d: %w", number, err)
		}
		return nil
	})
}

// AddReaction adds reaction (e.g. "+1") to commentID.
func (c *Client) AddReaction(ctx context.Context, commentID int64, reaction string) error {
	_, _, err := c.gh.Reactions.CreateIssueCommentReaction(ctx, c.Owner, c.Repo, commentID, reaction)
	if err != nil {
		return fmt.Errorf("failed to add reaction to comment %d: %w", commentID, err)
	}
	return nil
}

func splitFullname(fullname string) (owner, repo string) {
	parts := strings.SplitN(fullname, "/", 2)
	if len(parts) != 2 {
		return fullname, ""
	}
	return parts[0], parts[1]
}
