// Package repoconfig fetches, parses, and memoizes the per-repository
// policy file (`.github/hubcast.yml` or the destination equivalent),
// through one cache generalized over either forge's client.
package repoconfig

import (
	"context"
	"errors"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/LLNL/hubcast/pkg/hcerr"
)

// ConfigPath is the well-known location of the repo-local policy file.
const ConfigPath = ".github/hubcast.yml"

// RepoConfig is the resolved per-repository mirroring policy.
type RepoConfig struct {
	Fullname string `yaml:"-"`

	// SourceService records which forge this repo's events come from
	// ("github" or "gitlab"), so the destination ingress endpoint can
	// stay generic across both.
	SourceService string `yaml:"-"`

	DestOrg        string `yaml:"-"`
	DestName       string `yaml:"-"`
	CheckName      string `yaml:"check_name"`
	CheckType      string `yaml:"check_type"`
	CreateMR       bool   `yaml:"create_mr"`
	DeleteClosed   bool   `yaml:"delete_closed"`
	SyncDrafts     bool   `yaml:"draft_sync"`
	DraftSyncMsg   bool   `yaml:"draft_sync_msg"`
}

type repoDoc struct {
	Repo struct {
		Owner        string `yaml:"owner"`
		Name         string `yaml:"name"`
		CheckName    string `yaml:"check_name"`
		CheckType    string `yaml:"check_type"`
		CreateMR     *bool  `yaml:"create_mr"`
		DeleteClosed *bool  `yaml:"delete_closed"`
		DraftSync    *bool  `yaml:"draft_sync"`
		DraftSyncMsg *bool  `yaml:"draft_sync_msg"`
	} `yaml:"Repo"`
}

// defaultConfig returns the mirroring policy applied when a repository
// has no `.github/hubcast.yml` file or the file omits a field.
func defaultConfig() RepoConfig {
	return RepoConfig{
		CheckName:    "gitlab-ci",
		CheckType:    "pipeline",
		CreateMR:     false,
		DeleteClosed: true,
		SyncDrafts:   true,
		DraftSyncMsg: true,
	}
}

// ContentFetcher fetches the raw bytes of path from a repository's
// default branch. Implemented by the GitHub and GitLab forge clients.
type ContentFetcher interface {
	GetRawFile(ctx context.Context, fullname, path string) ([]byte, error)
}

// Cache memoizes RepoConfig by repository fullname.
type Cache struct {
	mu      sync.Mutex
	entries map[string]RepoConfig
}

// New creates an empty repo-config cache.
func New() *Cache {
	return &Cache{entries: make(map[string]RepoConfig)}
}

// Get returns the cached RepoConfig for fullname, or fetches and
// parses it via client when absent or refresh is set.
//
// A missing config file (a genuine 404 from client.GetRawFile) is
// tolerated and yields the defaults, since most repositories never opt
// into a policy file. Any other fetch failure surfaces as
// hcerr.UpstreamError, and a malformed file fails with
// hcerr.InvalidRepoConfigError; the cache is left unpopulated in
// either case.
func (c *Cache) Get(ctx context.Context, client ContentFetcher, fullname, sourceService string, refresh bool) (RepoConfig, error) {
	if !refresh {
		c.mu.Lock()
		cfg, ok := c.entries[fullname]
		c.mu.Unlock()
		if ok {
			return cfg, nil
		}
	}

	cfg, err := c.fetch(ctx, client, fullname, sourceService)
	if err != nil {
		return RepoConfig{}, err
	}

	c.mu.Lock()
	c.entries[fullname] = cfg
	c.mu.Unlock()

	return cfg, nil
}

func (c *Cache) fetch(ctx context.Context, client ContentFetcher, fullname, sourceService string) (RepoConfig, error) {
	cfg := defaultConfig()
	cfg.Fullname = fullname
	cfg.SourceService = sourceService

	raw, err := client.GetRawFile(ctx, fullname, ConfigPath)
	if err != nil {
		var notFound *hcerr.NotFoundError
		if !errors.As(err, &notFound) {
			return RepoConfig{}, hcerr.NewUpstreamError("failed to fetch repo config", err)
		}
		// Missing file: use defaults with owner/name derived from fullname.
		owner, name := splitFullname(fullname)
		cfg.DestOrg, cfg.DestName = owner, name
		return cfg, nil
	}

	var doc repoDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return RepoConfig{}, hcerr.NewInvalidRepoConfigError(fullname, err)
	}

	cfg.DestOrg = doc.Repo.Owner
	cfg.DestName = doc.Repo.Name
	if doc.Repo.CheckName != "" {
		cfg.CheckName = doc.Repo.CheckName
	}
	if doc.Repo.CheckType != "" {
		cfg.CheckType = doc.Repo.CheckType
	}
	if doc.Repo.CreateMR != nil {
		cfg.CreateMR = *doc.Repo.CreateMR
	}
	if doc.Repo.DeleteClosed != nil {
		cfg.DeleteClosed = *doc.Repo.DeleteClosed
	}
	if doc.Repo.DraftSync != nil {
		cfg.SyncDrafts = *doc.Repo.DraftSync
	}
	if doc.Repo.DraftSyncMsg != nil {
		cfg.DraftSyncMsg = *doc.Repo.DraftSyncMsg
	}

	if cfg.DestOrg == "" || cfg.DestName == "" {
		owner, name := splitFullname(fullname)
		if cfg.DestOrg == "" {
			cfg.DestOrg = owner
		}
		if cfg.DestName == "" {
			cfg.DestName = name
		}
	}

	return cfg, nil
}

func splitFullname(fullname string) (owner, name string) {
	for i := len(fullname) - 1; i >= 0; i-- {
		if fullname[i] == '/' {
			return fullname[:i], fullname[i+1:]
		}
	}
	return "", fullname
}
