package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	forgegithub "github.com/LLNL/hubcast/pkg/forge/github"
	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/repoconfig"
	"github.com/LLNL/hubcast/pkg/router"
	gosync "github.com/LLNL/hubcast/pkg/sync"
)

// prepareGitHubDispatch parses a GitHub webhook body for the event
// kinds hubcast acts on and returns the sender's login, the source
// repo's fullname, and a closure that performs the mirroring once the
// caller has resolved destUser. A nil handle with a nil error means
// the event kind is a benign skip.
func (s *Server) prepareGitHubDispatch(ctx context.Context, eventType string, body []byte) (senderLogin, repoFullname string, handle func(ctx context.Context, destUser string) error, err error) {
	switch eventType {
	case "push":
		var p githubPushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse push payload: %w", err)
		}
		after := p.After
		if p.HeadCommit != nil {
			after = p.HeadCommit.ID
		}
		return p.Sender.Login, p.Repository.FullName, func(ctx context.Context, destUser string) error {
			return s.dispatchGitHubPush(ctx, p, after, destUser)
		}, nil

	case "pull_request":
		var p githubPullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse pull_request payload: %w", err)
		}
		switch p.Action {
		case "opened", "reopened", "synchronize", "closed":
			return p.Sender.Login, p.Repository.FullName, func(ctx context.Context, destUser string) error {
				return s.dispatchGitHubPR(ctx, p, destUser)
			}, nil
		default:
			return p.Sender.Login, p.Repository.FullName, nil, nil
		}

	case "issue_comment":
		var p githubIssueCommentPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return "", "", nil, fmt.Errorf("failed to parse issue_comment payload: %w", err)
		}
		if p.Action != "created" || !p.isPullRequest() {
			return p.Sender.Login, p.Repository.FullName, nil, nil
		}
		return p.Sender.Login, p.Repository.FullName, func(ctx context.Context, destUser string) error {
			return s.dispatchGitHubComment(ctx, p, destUser)
		}, nil

	default:
		return "", "", nil, nil
	}
}

// githubSourceClient builds an installation-authenticated source
// client for fullname, resolves its mirroring policy, and mints a
// destination-user impersonation token.
func (s *Server) githubSourceClient(ctx context.Context, fullname, destUser string) (*forgegithub.Client, string, repoconfig.RepoConfig, gosync.DestProject, error) {
	owner, repo := splitFullname(fullname)

	token, err := s.githubAuth.AuthenticateInstallation(ctx, owner, repo)
	if err != nil {
		return nil, "", repoconfig.RepoConfig{}, gosync.DestProject{}, fmt.Errorf("failed to authenticate github installation for %s: %w", fullname, err)
	}
	client := forgegithub.New(ctx, owner, repo, token)

	repoCfg, err := s.repoConfigs.Get(ctx, client, fullname, "github", false)
	if err != nil {
		return nil, "", repoconfig.RepoConfig{}, gosync.DestProject{}, err
	}

	destToken, err := s.destGLAuth.AuthenticateUser(ctx, destUser, nil, 0)
	if err != nil {
		return nil, "", repoconfig.RepoConfig{}, gosync.DestProject{}, fmt.Errorf("failed to authenticate destination user %s: %w", destUser, err)
	}

	dest := gosync.DestProject{
		InstanceURL: s.cfg.DestGitLabURL,
		Org:         repoCfg.DestOrg,
		Name:        repoCfg.DestName,
		Username:    destUser,
		Token:       destToken,
	}
	return client, token, repoCfg, dest, nil
}

func (s *Server) dispatchGitHubPush(ctx context.Context, p githubPushPayload, after, destUser string) error {
	client, token, repoCfg, dest, err := s.githubSourceClient(ctx, p.Repository.FullName, destUser)
	if err != nil {
		return err
	}

	destRegistrar, err := s.destProjectClient(dest)
	if err != nil {
		return err
	}

	owner, repo := splitFullname(p.Repository.FullName)
	dc := &dispatchContext{
		wire:          s.wire,
		srcURL:        githubCloneURL(p.Repository.FullName),
		srcCreds:      gitwire.Credentials{Username: "x-access-token", Password: token},
		dest:          dest,
		prChecker:     client,
		registrar:     destRegistrar,
		callbackURL:   githubDestCallbackURL(s.cfg.DestGitLabCallbackURL, owner, repo, repoCfg.CheckName),
		webhookSecret: s.cfg.DestGitLabWebhookSecret,
		push: gosync.PushEvent{
			Ref:      p.Ref,
			AfterSHA: after,
			Deleted:  p.Deleted,
		},
	}
	s.table.Dispatch(ctx, router.Event{Kind: "push", Payload: dc})
	return nil
}

func (s *Server) dispatchGitHubPR(ctx context.Context, p githubPullRequestPayload, destUser string) error {
	_, token, _, dest, err := s.githubSourceClient(ctx, p.Repository.FullName, destUser)
	if err != nil {
		return err
	}

	dc := &dispatchContext{
		wire:     s.wire,
		srcURL:   githubCloneURL(p.Repository.FullName),
		srcCreds: gitwire.Credentials{Username: "x-access-token", Password: token},
		dest:     dest,
		prSync: gosync.PRSyncEvent{
			Service:    "github",
			Number:     p.Number,
			HeadSHA:    p.PullRequest.Head.SHA,
			HeadBranch: p.PullRequest.Head.Ref,
			FromFork:   p.fromFork(),
		},
	}

	event := router.Event{Kind: "pull_request", ObjectAttributes: map[string]any{"action": p.Action}, Payload: dc}
	s.table.Dispatch(ctx, event)
	return nil
}

func (s *Server) dispatchGitHubComment(ctx context.Context, p githubIssueCommentPayload, destUser string) error {
	client, token, _, dest, err := s.githubSourceClient(ctx, p.Repository.FullName, destUser)
	if err != nil {
		return err
	}

	runner, err := s.destProjectClient(dest)
	if err != nil {
		return err
	}

	dc := &dispatchContext{
		wire:      s.wire,
		srcURL:    githubCloneURL(p.Repository.FullName),
		srcCreds:  gitwire.Credentials{Username: "x-access-token", Password: token},
		dest:      dest,
		prFetcher: client,
		commenter: client,
		runner:    runner,
		comment: gosync.CommentEvent{
			IsPullRequest: p.isPullRequest(),
			Number:        p.Issue.Number,
			CommentID:     p.Comment.ID,
			Body:          p.Comment.Body,
		},
	}

	event := router.Event{Kind: "issue_comment", ObjectAttributes: map[string]any{"action": p.Action}, Payload: dc}
	s.table.Dispatch(ctx, event)
	return nil
}

func githubCloneURL(fullname string) string {
	return "https://github.com/" + fullname + ".git"
}

func splitFullname(fullname string) (owner, repo string) {
	for i := 0; i < len(fullname); i++ {
		if fullname[i] == '/' {
			return fullname[:i], fullname[i+1:]
		}
	}
	return fullname, ""
}
