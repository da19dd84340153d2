package sync

import (
	"context"

	"github.com/abcxyz/pkg/logging"

	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/hcerr"
)

// PRVisibilityChecker reports a GitLab fork project's visibility
// level, used to abort MR-sync against a private fork.
type PRVisibilityChecker interface {
	ProjectVisibilityLevel(ctx context.Context, projectID any) (int, error)
}

const publicVisibilityLevel = 20

// PRSyncEvent carries the fields HandlePRSync and HandlePRClose need,
// forge-agnostic.
type PRSyncEvent struct {
	Service       string // "github" or "gitlab"
	Number        int    // GitHub PR number or GitLab MR iid
	HeadSHA       string
	HeadBranch    string
	FromFork      bool
	ForkProjectID any // GitLab-only: the fork project to check visibility on
}

// HandlePRSync mirrors a pull/merge request's head commit onto its
// computed destination branch, aborting if the source is a private
// GitLab fork.
func HandlePRSync(ctx context.Context, wire *gitwire.Client, srcURL string, srcCreds gitwire.Credentials, visChecker PRVisibilityChecker, dest DestProject, evt PRSyncEvent) error {
	if evt.FromFork && evt.Service == "gitlab" && visChecker != nil {
		level, err := visChecker.ProjectVisibilityLevel(ctx, evt.ForkProjectID)
		if err != nil {
			return hcerr.NewUpstreamError("failed to check fork visibility", err)
		}
		if level != publicVisibilityLevel {
			// private forks cannot be read; abort
			logging.FromContext(ctx).InfoContext(ctx, "skipping merge request from private fork",
				"number", evt.Number, "fork_project_id", evt.ForkProjectID)
			return nil
		}
	}

	ref := TargetRef(evt.Service, evt.Number, evt.FromFork, evt.HeadBranch)

	destCreds := gitwire.Credentials{Username: dest.Username, Password: dest.Token}
	destRefs, err := wire.LsRemote(ctx, dest.RemoteURL(), "git-receive-pack", destCreds)
	if err != nil {
		return hcerr.NewGitWireError("failed to list destination refs", err)
	}

	return MirrorRef(ctx, wire, srcURL, srcCreds, dest, ref, evt.HeadSHA, destRefs)
}

// HandlePRClose deletes the fork-synthesized destination branch when
// a pull/merge request sourced from a fork closes. Requests not from
// a fork are a no-op; the eventual branch-delete push event cleans up
// that branch.
func HandlePRClose(ctx context.Context, wire *gitwire.Client, dest DestProject, evt PRSyncEvent) error {
	if !evt.FromFork {
		return nil
	}

	ref := ForkBranchName(evt.Service, evt.Number)
	destCreds := gitwire.Credentials{Username: dest.Username, Password: dest.Token}
	destRefs, err := wire.LsRemote(ctx, dest.RemoteURL(), "git-receive-pack", destCreds)
	if err != nil {
		return hcerr.NewGitWireError("failed to list destination refs", err)
	}

	return DeleteRef(ctx, wire, dest, ref, destRefs)
}
