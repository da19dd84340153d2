package accountmap

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabOAuthMap resolves destination usernames by looking up a
// GitLab user whose linked identity (extern_uid, provider) matches the
// source identity — used when the destination GitLab is configured to
// federate logins from the source forge via OAuth.
type GitLabOAuthMap struct {
	client   *gitlab.Client
	provider string
}

// NewGitLabOAuthMap constructs a GitLabOAuthMap against instanceURL
// using adminToken, matching identities registered under provider
// (e.g. "github").
func NewGitLabOAuthMap(instanceURL, adminToken, provider string) (*GitLabOAuthMap, error) {
	client, err := gitlab.NewClient(adminToken, gitlab.WithBaseURL(instanceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &GitLabOAuthMap{client: client, provider: provider}, nil
}

// Lookup implements Map.
func (m *GitLabOAuthMap) Lookup(ctx context.Context, src string) (string, bool, error) {
	users, _, err := m.client.Users.ListUsers(&gitlab.ListUsersOptions{
		ExternUID: gitlab.Ptr(src),
		Provider:  gitlab.Ptr(m.provider),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", false, fmt.Errorf("failed to look up gitlab user for extern_uid %q: %w", src, err)
	}
	if len(users) == 0 {
		return "", false, nil
	}
	return users[0].Username, true, nil
}
