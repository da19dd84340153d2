package sync

import (
	"context"

	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/hcerr"
)

// BranchPRChecker reports whether branch is the head of an open pull
// request, used to skip a push-sync in favor of the PR-sync path.
type BranchPRChecker interface {
	HasOpenPRForBranch(ctx context.Context, branch string) (bool, error)
}

// WebhookRegistrar ensures a callback webhook pointing at callbackURL
// is registered on a project.
type WebhookRegistrar interface {
	EnsureWebhook(ctx context.Context, callbackURL, secret string) error
}

// PushEvent carries the fields HandlePush needs out of a push webhook
// payload, forge-agnostic.
type PushEvent struct {
	Ref      string // fully-qualified, e.g. refs/heads/main
	AfterSHA string
	Deleted  bool
}

// HandlePush mirrors a pushed ref onto the destination project. It
// skips in favor of PR-sync when an open pull request already covers
// the ref, and ensures the destination→source callback webhook is
// registered before mirroring.
func HandlePush(ctx context.Context, wire *gitwire.Client, srcURL string, srcCreds gitwire.Credentials, prChecker BranchPRChecker, registrar WebhookRegistrar, callbackURL, webhookSecret string, dest DestProject, evt PushEvent) error {
	if !evt.Deleted && prChecker != nil {
		open, err := prChecker.HasOpenPRForBranch(ctx, refToBranch(evt.Ref))
		if err != nil {
			return hcerr.NewUpstreamError("failed to check open PRs for "+evt.Ref, err)
		}
		if open {
			return nil // the PR-sync handler owns this ref
		}
	}

	if registrar != nil {
		if err := registrar.EnsureWebhook(ctx, callbackURL, webhookSecret); err != nil {
			return hcerr.NewUpstreamError("failed to ensure destination webhook", err)
		}
	}

	destCreds := gitwire.Credentials{Username: dest.Username, Password: dest.Token}
	destRefs, err := wire.LsRemote(ctx, dest.RemoteURL(), "git-receive-pack", destCreds)
	if err != nil {
		return hcerr.NewGitWireError("failed to list destination refs", err)
	}

	if evt.Deleted {
		return DeleteRef(ctx, wire, dest, evt.Ref, destRefs)
	}
	return MirrorRef(ctx, wire, srcURL, srcCreds, dest, evt.Ref, evt.AfterSHA, destRefs)
}

func refToBranch(ref string) string {
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}
