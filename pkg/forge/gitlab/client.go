// Package gitlab wraps gitlab.com/gitlab-org/api/client-go into the
// high-level operations hubcast's sync handlers need against a
// destination (or GitLab source) project: raw file fetches, webhook
// registration, project visibility lookups, pipeline triggers, and
// commit statuses.
package gitlab

import (
	"context"
	"fmt"
	"net/http"

	"github.com/LLNL/hubcast/pkg/hcerr"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Client is a project-scoped GitLab REST client.
type Client struct {
	gl        *gitlab.Client
	ProjectID any // int or "group/project" path, whichever the caller has on hand
}

// New constructs a Client against instanceURL using token.
func New(instanceURL, token string, projectID any) (*Client, error) {
	gl, err := gitlab.NewClient(token, gitlab.WithBaseURL(instanceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Client{gl: gl, ProjectID: projectID}, nil
}

// GetRawFile implements repoconfig.ContentFetcher: fetches path's raw
// content from the project's default branch.
func (c *Client) GetRawFile(ctx context.Context, fullname, path string) ([]byte, error) {
	project := c.ProjectID
	if fullname != "" {
		project = fullname
	}

	raw, resp, err := c.gl.RepositoryFiles.GetRawFile(project, path, &gitlab.GetRawFileOptions{
		Ref: gitlab.Ptr("HEAD"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, hcerr.NewNotFoundError(fmt.Sprintf("%s not found in %v", path, project), err)
		}
		return nil, hcerr.NewUpstreamError(fmt.Sprintf("failed to get %s from %v", path, project), err)
	}
	return raw, nil
}

// EnsureWebhook makes sure a project webhook pointing at callbackURL
// is registered, creating one if none matches.
func (c *Client) EnsureWebhook(ctx context.Context, callbackURL, secret string) error {
	hooks, _, err := c.gl.Projects.ListProjectHooks(c.ProjectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list webhooks for %v: %w", c.ProjectID, err)
	}
	for _, h := range hooks {
		if h.URL == callbackURL {
			return nil
		}
	}

	_, _, err = c.gl.Projects.AddProjectHook(c.ProjectID, &gitlab.AddProjectHookOptions{
		URL:                   gitlab.Ptr(callbackURL),
		Token:                 gitlab.Ptr(secret),
		PushEvents:            gitlab.Ptr(true),
		MergeRequestsEvents:   gitlab.Ptr(true),
		PipelineEvents:        gitlab.Ptr(true),
		EnableSSLVerification: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create webhook for %v: %w", c.ProjectID, err)
	}
	return nil
}

// publicVisibilityLevel is GitLab's numeric level for "public"
// project visibility.
const publicVisibilityLevel = 20

// ProjectVisibilityLevel returns projectID's numeric visibility
// level, used to abort mirroring a merge request sourced from a
// private fork.
func (c *Client) ProjectVisibilityLevel(ctx context.Context, projectID any) (int, error) {
	project, _, err := c.gl.Projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to get project %v: %w", projectID, err)
	}
	switch project.Visibility {
	case gitlab.PublicVisibility:
		return publicVisibilityLevel, nil
	case gitlab.InternalVisibility:
		return 10, nil
	default:
		return 0, nil
	}
}

// RunPipeline triggers a pipeline for ref on the destination project,
// returning the created pipeline's web URL.
func (c *Client) RunPipeline(ctx context.Context, destProject any, ref string) (string, error) {
	pipeline, _, err := c.gl.Pipelines.CreatePipeline(destProject, &gitlab.CreatePipelineOptions{
		Ref: gitlab.Ptr(ref),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to run pipeline for %v on %s: %w", destProject, ref, err)
	}
	return pipeline.WebURL, nil
}

// SetCheckStatus reports status on a GitLab source repository's
// commit using the commit-status API. conclusion is accepted only to
// satisfy the common SourceCheckClient interface shape shared with
// the GitHub client; GitLab commit statuses have no separate
// conclusion field.
func (c *Client) SetCheckStatus(ctx context.Context, sha, checkName, status, conclusion, targetURL string) error {
	_, _, err := c.gl.Commits.SetCommitStatus(c.ProjectID, sha, &gitlab.SetCommitStatusOptions{
		State:     gitlab.BuildStateValue(status),
		Name:      gitlab.Ptr(checkName),
		TargetURL: gitlab.Ptr(targetURL),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to set commit status for %s: %w", sha, err)
	}
	return nil
}
