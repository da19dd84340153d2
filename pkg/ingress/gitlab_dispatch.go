package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	forgegitlab "github.com/LLNL/hubcast/pkg/forge/gitlab"
	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/repoconfig"
	"github.com/LLNL/hubcast/pkg/router"
	gosync "github.com/LLNL/hubcast/pkg/sync"
)

// prepareGitLabDispatch parses a GitLab webhook body for the event
// kinds hubcast acts on. Comment commands are GitHub-only, so
// "Note Hook" carries no handler here.
func (s *Server) prepareGitLabDispatch(ctx context.Context, eventType string, body []byte) (senderLogin, repoFullname string, handle func(ctx context.Context, destUser string) error, err error) {
	switch eventType {
	case "Push Hook":
		var p gitlabPushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse push hook payload: %w", err)
		}
		return p.UserUsername, p.Project.PathWithNamespace, func(ctx context.Context, destUser string) error {
			return s.dispatchGitLabPush(ctx, p, destUser)
		}, nil

	case "Merge Request Hook":
		var p gitlabMergeRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse merge request hook payload: %w", err)
		}
		switch p.ObjectAttributes.Action {
		case "open", "reopen", "update", "close":
			return p.User.Username, p.Project.PathWithNamespace, func(ctx context.Context, destUser string) error {
				return s.dispatchGitLabMR(ctx, p, destUser)
			}, nil
		default:
			return p.User.Username, p.Project.PathWithNamespace, nil, nil
		}

	default:
		return "", "", nil, nil
	}
}

// gitlabSourceClient builds a token-authenticated source client for
// fullname, resolves its mirroring policy, and mints a destination-user
// impersonation token.
func (s *Server) gitlabSourceClient(ctx context.Context, fullname, destUser string) (*forgegitlab.Client, repoconfig.RepoConfig, gosync.DestProject, error) {
	client, err := forgegitlab.New(s.cfg.SrcGitLabURL, s.cfg.SrcGitLabToken, fullname)
	if err != nil {
		return nil, repoconfig.RepoConfig{}, gosync.DestProject{}, fmt.Errorf("failed to construct gitlab source client for %s: %w", fullname, err)
	}

	repoCfg, err := s.repoConfigs.Get(ctx, client, fullname, "gitlab", false)
	if err != nil {
		return nil, repoconfig.RepoConfig{}, gosync.DestProject{}, err
	}

	destToken, err := s.destGLAuth.AuthenticateUser(ctx, destUser, nil, 0)
	if err != nil {
		return nil, repoconfig.RepoConfig{}, gosync.DestProject{}, fmt.Errorf("failed to authenticate destination user %s: %w", destUser, err)
	}

	dest := gosync.DestProject{
		InstanceURL: s.cfg.DestGitLabURL,
		Org:         repoCfg.DestOrg,
		Name:        repoCfg.DestName,
		Username:    destUser,
		Token:       destToken,
	}
	return client, repoCfg, dest, nil
}

func (s *Server) dispatchGitLabPush(ctx context.Context, p gitlabPushPayload, destUser string) error {
	_, repoCfg, dest, err := s.gitlabSourceClient(ctx, p.Project.PathWithNamespace, destUser)
	if err != nil {
		return err
	}

	destRegistrar, err := s.destProjectClient(dest)
	if err != nil {
		return err
	}

	deleted := p.After == gosync.ZeroOID
	dc := &dispatchContext{
		wire:          s.wire,
		srcURL:        gitlabCloneURL(s.cfg.SrcGitLabURL, p.Project.PathWithNamespace),
		srcCreds:      gitwire.Credentials{Username: "oauth2", Password: s.cfg.SrcGitLabToken},
		dest:          dest,
		registrar:     destRegistrar,
		callbackURL:   gitlabDestCallbackURL(s.cfg.DestGitLabCallbackURL, p.Project.PathWithNamespace, repoCfg.CheckName),
		webhookSecret: s.cfg.DestGitLabWebhookSecret,
		push: gosync.PushEvent{
			Ref:      p.Ref,
			AfterSHA: p.After,
			Deleted:  deleted,
		},
	}
	s.table.Dispatch(ctx, router.Event{Kind: "push", Payload: dc})
	return nil
}

func (s *Server) dispatchGitLabMR(ctx context.Context, p gitlabMergeRequestPayload, destUser string) error {
	_, _, dest, err := s.gitlabSourceClient(ctx, p.Project.PathWithNamespace, destUser)
	if err != nil {
		return err
	}

	var visChecker gosync.PRVisibilityChecker
	if p.fromFork() {
		visChecker, err = forgegitlab.New(s.cfg.SrcGitLabURL, s.cfg.SrcGitLabToken, p.ObjectAttributes.SourceProjectID)
		if err != nil {
			return fmt.Errorf("failed to construct fork visibility client: %w", err)
		}
	}

	dc := &dispatchContext{
		wire:       s.wire,
		srcURL:     gitlabCloneURL(s.cfg.SrcGitLabURL, p.Project.PathWithNamespace),
		srcCreds:   gitwire.Credentials{Username: "oauth2", Password: s.cfg.SrcGitLabToken},
		dest:       dest,
		visChecker: visChecker,
		prSync: gosync.PRSyncEvent{
			Service:       "gitlab",
			Number:        p.ObjectAttributes.IID,
			HeadSHA:       p.ObjectAttributes.LastCommit.ID,
			HeadBranch:    p.ObjectAttributes.SourceBranch,
			FromFork:      p.fromFork(),
			ForkProjectID: p.ObjectAttributes.SourceProjectID,
		},
	}

	event := router.Event{Kind: "merge_request", ObjectAttributes: map[string]any{"action": p.ObjectAttributes.Action}, Payload: dc}
	s.table.Dispatch(ctx, event)
	return nil
}

func gitlabCloneURL(instanceURL, fullname string) string {
	return trimTrailingSlash(instanceURL) + "/" + fullname + ".git"
}
