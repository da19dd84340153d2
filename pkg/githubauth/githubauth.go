// Package githubauth mints and caches the credentials hubcast needs to
// act as a GitHub App: a short-lived signed JWT, and installation
// access tokens exchanged for that JWT, scoped per repository.
package githubauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v56/github"

	"github.com/LLNL/hubcast/pkg/secrets"
	"github.com/LLNL/hubcast/pkg/tokencache"
)

// jwtLifetime is the fixed lifetime GitHub enforces on App JWTs.
const jwtLifetime = 10 * time.Minute

// jwtClockSkew backdates `iat` to tolerate clock drift between hubcast
// and GitHub's servers.
const jwtClockSkew = 60 * time.Second

// Authenticator mints and caches GitHub App JWTs and per-repo
// installation access tokens.
type Authenticator struct {
	appID      string
	requester  string
	privateKey any // *rsa.PrivateKey, kept opaque to avoid importing crypto/rsa here
	client     *github.Client

	jwtCache            *tokencache.Cache[string]
	installationIDCache *tokencache.Cache[int64]
	installCache        *tokencache.Cache[string]
}

// Config carries the inputs required to construct an Authenticator.
type Config struct {
	AppID      string
	PrivateKey string // PEM-encoded, or a Secret Manager resource name
	Requester  string
	BaseURL    string // optional, for GitHub Enterprise Server
}

// New constructs an Authenticator, resolving PrivateKey through
// pkg/secrets so it may be a literal PEM blob or a Secret Manager
// reference.
func New(ctx context.Context, cfg Config) (*Authenticator, error) {
	pem, err := secrets.Resolve(ctx, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve github private key: %w", err)
	}

	key, err := secrets.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse github app private key: %w", err)
	}

	client := github.NewClient(nil)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create enterprise github client: %w", err)
		}
	}
	client.UserAgent = cfg.Requester

	return &Authenticator{
		appID:               cfg.AppID,
		requester:           cfg.Requester,
		privateKey:          key,
		client:              client,
		jwtCache:            tokencache.New[string](),
		installationIDCache: tokencache.New[int64](),
		installCache:        tokencache.New[string](),
	}, nil
}

// GetJWT returns a cached app JWT, renewing it if fewer than
// DefaultTimeNeeded seconds remain before expiry.
func (a *Authenticator) GetJWT(ctx context.Context) (string, error) {
	return a.jwtCache.Get(ctx, "app-jwt", a.renewJWT, tokencache.DefaultTimeNeeded)
}

func (a *Authenticator) renewJWT(ctx context.Context) (string, int64, error) {
	now := time.Now()
	iat := now.Add(-jwtClockSkew)
	exp := now.Add(jwtLifetime)

	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
		Issuer:    a.appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign app jwt: %w", err)
	}

	return signed, exp.Unix(), nil
}

// GetInstallationID resolves and memoizes the installation id for a
// repository via GET /repos/{owner}/{repo}/installation.
func (a *Authenticator) GetInstallationID(ctx context.Context, owner, repo string) (int64, error) {
	return a.installationIDCache.Get(ctx, owner+"/"+repo, func(ctx context.Context) (int64, int64, error) {
		jwtTok, err := a.GetJWT(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get app jwt: %w", err)
		}

		client := a.jwtClient(jwtTok)
		installation, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to find installation for %s/%s: %w", owner, repo, err)
		}

		// Installation ids never expire on their own; cache "forever"
		// relative to process lifetime.
		return installation.GetID(), time.Now().Add(365 * 24 * time.Hour).Unix(), nil
	}, tokencache.DefaultTimeNeeded)
}

// AuthenticateInstallation exchanges the app JWT for an installation
// access token scoped to owner/repo, caching it under the installation
// id until the token's reported expires_at.
func (a *Authenticator) AuthenticateInstallation(ctx context.Context, owner, repo string) (string, error) {
	installationID, err := a.GetInstallationID(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("installation-token:%d", installationID)
	return a.installCache.Get(ctx, key, func(ctx context.Context) (string, int64, error) {
		jwtTok, err := a.GetJWT(ctx)
		if err != nil {
			return "", 0, fmt.Errorf("failed to get app jwt: %w", err)
		}

		client := a.jwtClient(jwtTok)
		tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
		if err != nil {
			return "", 0, fmt.Errorf("failed to create installation token for %s/%s: %w", owner, repo, err)
		}

		expiresAt := tok.GetExpiresAt()
		return tok.GetToken(), expiresAt.Unix(), nil
	}, tokencache.DefaultTimeNeeded)
}

// jwtClient returns a throwaway *github.Client authenticated with the
// bearer JWT, used only for the two App-level endpoints that require
// JWT (rather than installation-token) auth.
func (a *Authenticator) jwtClient(jwtTok string) *github.Client {
	rt := &bearerTransport{token: jwtTok, base: http.DefaultTransport}
	httpClient := &http.Client{Transport: rt}
	client := github.NewClient(httpClient)
	client.UserAgent = a.requester
	return client
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	r.Header.Set("Accept", "application/vnd.github+json")
	return t.base.RoundTrip(r)
}
