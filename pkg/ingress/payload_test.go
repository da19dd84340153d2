package ingress

import "testing"

func TestGithubPullRequestPayloadFromFork(t *testing.T) {
	t.Parallel()

	var p githubPullRequestPayload
	p.PullRequest.Head.Repo.FullName = "alice/widget"
	p.PullRequest.Base.Repo.FullName = "upstream/widget"
	if !p.fromFork() {
		t.Error("expected differing head/base repos to be from a fork")
	}

	p.PullRequest.Head.Repo.FullName = "upstream/widget"
	if p.fromFork() {
		t.Error("expected matching head/base repos to not be from a fork")
	}
}

func TestGithubIssueCommentPayloadIsPullRequest(t *testing.T) {
	t.Parallel()

	var withPR githubIssueCommentPayload
	withPR.Issue.PullRequest = []byte(`{"url":"https://api.github.com/repos/o/r/pulls/1"}`)
	if !withPR.isPullRequest() {
		t.Error("expected non-empty pull_request field to report true")
	}

	var withoutPR githubIssueCommentPayload
	if withoutPR.isPullRequest() {
		t.Error("expected absent pull_request field to report false")
	}
}

func TestGitlabMergeRequestPayloadFromFork(t *testing.T) {
	t.Parallel()

	var p gitlabMergeRequestPayload
	p.ObjectAttributes.SourceProjectID = 1
	p.ObjectAttributes.TargetProjectID = 2
	if !p.fromFork() {
		t.Error("expected differing source/target project ids to be from a fork")
	}

	p.ObjectAttributes.TargetProjectID = 1
	if p.fromFork() {
		t.Error("expected matching source/target project ids to not be from a fork")
	}
}
