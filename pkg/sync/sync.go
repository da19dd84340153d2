// Package sync implements the event-to-action handlers: branch
// mirroring, PR/MR mirroring, comment commands, and pipeline-status
// relay. These are the callbacks the ingress server registers into
// pkg/router's dispatch table.
package sync

import (
	"context"
	"fmt"

	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/hcerr"
	"github.com/LLNL/hubcast/pkg/repoconfig"
)

// ZeroOID is re-exported for callers that only import pkg/sync.
const ZeroOID = gitwire.ZeroOID

// DestProject identifies the destination GitLab project a sync
// targets.
type DestProject struct {
	InstanceURL string
	Org         string
	Name        string
	Username    string // impersonated destination user
	Token       string // impersonation token
}

// RemoteURL returns the HTTPS clone URL for the destination project.
func (d DestProject) RemoteURL() string {
	return fmt.Sprintf("%s/%s/%s.git", trimSlash(d.InstanceURL), d.Org, d.Name)
}

func trimSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

// ContentFetcher is satisfied by both forge clients; aliased here so
// sync functions don't need to import pkg/repoconfig's interface name
// directly at call sites.
type ContentFetcher = repoconfig.ContentFetcher

// MirrorRef fetches wantSHA from srcURL (with optional srcCreds) and
// sends it to dest.RemoteURL() on ref, computing fromSHA from destRefs
// (the ls-remote result already gathered by the caller against the
// destination). A no-op is performed when wantSHA is already present
// in destRefs.
func MirrorRef(ctx context.Context, wire *gitwire.Client, srcURL string, srcCreds gitwire.Credentials, dest DestProject, ref, wantSHA string, destRefs gitwire.RefMap) error {
	for _, sha := range destRefs {
		if sha == wantSHA {
			return nil // already mirrored; idempotent no-op
		}
	}

	fromSHA := destRefs[ref]
	if fromSHA == "" {
		fromSHA = gitwire.ZeroOID
	}

	have := make([]string, 0, len(destRefs))
	for _, sha := range destRefs {
		have = append(have, sha)
	}

	pack, err := wire.FetchPack(ctx, srcURL, wantSHA, have, srcCreds)
	if err != nil {
		return hcerr.NewGitWireError("failed to fetch pack for "+ref, err)
	}

	destCreds := gitwire.Credentials{Username: dest.Username, Password: dest.Token}
	if err := wire.SendPack(ctx, dest.RemoteURL(), ref, fromSHA, wantSHA, pack, destCreds); err != nil {
		return hcerr.NewGitWireError("failed to send pack for "+ref, err)
	}
	return nil
}

// DeleteRef deletes ref on the destination project, no-op if already
// absent from destRefs.
func DeleteRef(ctx context.Context, wire *gitwire.Client, dest DestProject, ref string, destRefs gitwire.RefMap) error {
	headSHA, ok := destRefs[ref]
	if !ok {
		return nil // already deleted
	}

	destCreds := gitwire.Credentials{Username: dest.Username, Password: dest.Token}
	if err := wire.SendPack(ctx, dest.RemoteURL(), ref, headSHA, gitwire.ZeroOID, nil, destCreds); err != nil {
		return hcerr.NewGitWireError("failed to delete ref "+ref, err)
	}
	return nil
}

// ForkBranchName computes the synthesized destination branch name for
// a fork PR/MR.
func ForkBranchName(service string, number int) string {
	if service == "gitlab" {
		return fmt.Sprintf("refs/heads/mr-%d", number)
	}
	return fmt.Sprintf("refs/heads/pr-%d", number)
}

// TargetRef returns the destination branch to mirror a PR/MR onto:
// the fork-synthesized name when fromFork, else the head branch
// itself.
func TargetRef(service string, number int, fromFork bool, headBranch string) string {
	if fromFork {
		return ForkBranchName(service, number)
	}
	return "refs/heads/" + headBranch
}
