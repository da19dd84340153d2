// Package gitlabauth mints and caches destination-GitLab impersonation
// tokens on behalf of a resolved destination username, using an
// administrator personal access token.
package gitlabauth

import (
	"context"
	"fmt"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/LLNL/hubcast/pkg/tokencache"
)

// TokenName is the fixed name given to every impersonation token
// hubcast mints, matching the original's TOKEN_NAME.
const TokenName = "hubcast-impersonation"

// DefaultScopes are the scopes requested for an impersonation token.
var DefaultScopes = []string{"api", "read_repository", "write_repository"}

// DefaultExpireDays is the number of days from now, at UTC midnight,
// that a minted impersonation token is set to expire.
const DefaultExpireDays = 1

// Authenticator mints and caches destination-GitLab impersonation
// tokens, keyed by username so cache hits avoid repeated user-id
// lookups (GitLab's impersonation-token API only accepts a date, not
// a datetime, for expires_at).
type Authenticator struct {
	client *gitlab.Client

	cache *tokencache.Cache[string]
}

// New constructs an Authenticator against instanceURL, authenticated
// as adminToken.
func New(instanceURL, adminToken string) (*Authenticator, error) {
	client, err := gitlab.NewClient(adminToken, gitlab.WithBaseURL(instanceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Authenticator{
		client: client,
		cache:  tokencache.New[string](),
	}, nil
}

// AuthenticateUser resolves username's numeric id and mints (or
// returns a cached) impersonation token scoped to scopes, expiring at
// UTC midnight expireDays from now.
func (a *Authenticator) AuthenticateUser(ctx context.Context, username string, scopes []string, expireDays int) (string, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	if expireDays <= 0 {
		expireDays = DefaultExpireDays
	}

	key := "impersonation:" + username
	return a.cache.Get(ctx, key, func(ctx context.Context) (string, int64, error) {
		userID, err := a.getUserID(ctx, username)
		if err != nil {
			return "", 0, err
		}

		expiresAt := dateAfterDays(time.Now().UTC(), expireDays)
		glScopes := make([]gitlab.ImpersonationTokenScope, 0, len(scopes))
		for _, s := range scopes {
			glScopes = append(glScopes, gitlab.ImpersonationTokenScope(s))
		}

		expiresAtISO := gitlab.ISOTime(expiresAt)
		tok, _, err := a.client.Users.CreateImpersonationToken(userID, &gitlab.CreateImpersonationTokenOptions{
			Name:      gitlab.Ptr(TokenName),
			Scopes:    &glScopes,
			ExpiresAt: &expiresAtISO,
		}, gitlab.WithContext(ctx))
		if err != nil {
			return "", 0, fmt.Errorf("failed to create impersonation token for %s: %w", username, err)
		}

		return tok.Token, expiresAt.Unix(), nil
	}, tokencache.DefaultTimeNeeded)
}

// getUserID resolves username to its numeric GitLab user id via
// GET /users?username=...; the first matching result is used.
func (a *Authenticator) getUserID(ctx context.Context, username string) (int, error) {
	users, _, err := a.client.Users.ListUsers(&gitlab.ListUsersOptions{
		Username: gitlab.Ptr(username),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to list users for %q: %w", username, err)
	}
	if len(users) == 0 {
		return 0, fmt.Errorf("user %q not found", username)
	}
	return users[0].ID, nil
}

// dateAfterDays returns the UTC midnight timestamp expireDays after
// from, matching the original's date-only (not datetime) expiry.
func dateAfterDays(from time.Time, expireDays int) time.Time {
	d := from.AddDate(0, 0, expireDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
