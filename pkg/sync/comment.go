package sync

import (
	"context"
	"fmt"
	"regexp"

	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/hcerr"
)

// Command regexes search for the command anywhere in the comment body
// (e.g. "thanks, /hubcast approve" is recognized), not just a comment
// consisting of nothing else.
var (
	helpCommandRe        = regexp.MustCompile(`(?i)/hubcast\s+help`)
	approveCommandRe     = regexp.MustCompile(`(?i)/hubcast\s+approve`)
	runPipelineCommandRe = regexp.MustCompile(`(?i)/hubcast\s+run\s+pipeline`)
)

// HelpMessage is the canonical reply to "/hubcast help", posted
// verbatim.
const HelpMessage = `hubcast understands the following commands on a pull request:

  /hubcast help          show this message
  /hubcast approve       mirror this pull request to the destination CI project
  /hubcast run pipeline  trigger a destination pipeline run for this pull request`

// CommentPRFetcher fetches the pull request details needed to run the
// approve / run-pipeline commands.
type CommentPRFetcher interface {
	GetPRForSync(ctx context.Context, number int) (headSHA, headBranch string, fromFork bool, err error)
}

// Commenter posts replies and reactions on a pull request's comment
// thread.
type Commenter interface {
	PostComment(ctx context.Context, number int, body string) error
	AddReaction(ctx context.Context, commentID int64, reaction string) error
}

// PipelineRunner triggers a pipeline run on the destination project.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, destProject any, ref string) (string, error)
}

// CommentEvent carries the fields HandleComment needs out of an
// issue_comment webhook payload. Comment commands are GitHub-only.
type CommentEvent struct {
	IsPullRequest bool
	Number        int
	CommentID     int64
	Body          string
}

// HandleComment parses a GitHub issue comment for a /hubcast command
// and executes it. Comments on plain issues, and comments matching no
// known command, are benign no-ops.
func HandleComment(ctx context.Context, wire *gitwire.Client, srcURL string, srcCreds gitwire.Credentials, prFetcher CommentPRFetcher, commenter Commenter, runner PipelineRunner, dest DestProject, evt CommentEvent) error {
	if !evt.IsPullRequest {
		return nil
	}

	switch {
	case helpCommandRe.MatchString(evt.Body):
		return commenter.PostComment(ctx, evt.Number, HelpMessage)

	case approveCommandRe.MatchString(evt.Body):
		return handleApprove(ctx, wire, srcURL, srcCreds, prFetcher, commenter, dest, evt)

	case runPipelineCommandRe.MatchString(evt.Body):
		return handleRunPipeline(ctx, prFetcher, commenter, runner, dest, evt)

	default:
		return nil // no recognized command
	}
}

func handleApprove(ctx context.Context, wire *gitwire.Client, srcURL string, srcCreds gitwire.Credentials, prFetcher CommentPRFetcher, commenter Commenter, dest DestProject, evt CommentEvent) error {
	headSHA, headBranch, fromFork, err := prFetcher.GetPRForSync(ctx, evt.Number)
	if err != nil {
		return hcerr.NewUpstreamError("failed to fetch PR for approve", err)
	}

	syncEvt := PRSyncEvent{
		Service:    "github",
		Number:     evt.Number,
		HeadSHA:    headSHA,
		HeadBranch: headBranch,
		FromFork:   fromFork,
	}
	if err := HandlePRSync(ctx, wire, srcURL, srcCreds, nil, dest, syncEvt); err != nil {
		return err
	}
	return commenter.AddReaction(ctx, evt.CommentID, "+1")
}

func handleRunPipeline(ctx context.Context, prFetcher CommentPRFetcher, commenter Commenter, runner PipelineRunner, dest DestProject, evt CommentEvent) error {
	_, headBranch, fromFork, err := prFetcher.GetPRForSync(ctx, evt.Number)
	if err != nil {
		return hcerr.NewUpstreamError("failed to fetch PR for run pipeline", err)
	}

	ref := TargetRef("github", evt.Number, fromFork, headBranch)
	destProject := dest.Org + "/" + dest.Name

	url, err := runner.RunPipeline(ctx, destProject, ref)
	if err != nil || url == "" {
		return commenter.PostComment(ctx, evt.Number, "failed to trigger destination pipeline")
	}

	if err := commenter.PostComment(ctx, evt.Number, fmt.Sprintf("triggered destination pipeline: %s", url)); err != nil {
		return err
	}
	return commenter.AddReaction(ctx, evt.CommentID, "+1")
}
