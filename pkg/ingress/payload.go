// Package ingress implements the two hubcast webhook endpoints: the
// source-forge event receiver and the destination-GitLab callback
// receiver. It validates each request's signature (HMAC for GitHub,
// shared-token equality for GitLab), resolves the acting
// destination identity via the account map, parses the forge payload
// into a forge-agnostic shape, and dispatches it through pkg/router to
// the pkg/sync handlers.
package ingress

import "encoding/json"

// githubPushPayload is the subset of a GitHub push event hubcast needs.
type githubPushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	HeadCommit *struct {
		ID string `json:"id"`
	} `json:"head_commit"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// githubPullRequestPayload is the subset of a GitHub pull_request
// event hubcast needs.
type githubPullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA  string `json:"sha"`
			Ref  string `json:"ref"`
			Repo struct {
				FullName string `json:"full_name"`
			} `json:"repo"`
		} `json:"head"`
		Base struct {
			Repo struct {
				FullName string `json:"full_name"`
			} `json:"repo"`
		} `json:"base"`
	} `json:"pull_request"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (p githubPullRequestPayload) fromFork() bool {
	return p.PullRequest.Head.Repo.FullName != p.PullRequest.Base.Repo.FullName
}

// githubIssueCommentPayload is the subset of a GitHub issue_comment
// event hubcast needs.
type githubIssueCommentPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number      int             `json:"number"`
		PullRequest json.RawMessage `json:"pull_request"` // present only when the issue is a PR
	} `json:"issue"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	} `json:"comment"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (p githubIssueCommentPayload) isPullRequest() bool {
	return len(p.Issue.PullRequest) > 0
}

// gitlabPushPayload is the subset of a GitLab Push Hook hubcast needs.
type gitlabPushPayload struct {
	ObjectKind   string `json:"object_kind"`
	Ref          string `json:"ref"`
	Before       string `json:"before"`
	After        string `json:"after"`
	UserUsername string `json:"user_username"`
	Project      struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

// gitlabMergeRequestPayload is the subset of a GitLab Merge Request
// Hook hubcast needs.
type gitlabMergeRequestPayload struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		IID              int    `json:"iid"`
		Action           string `json:"action"`
		SourceBranch     string `json:"source_branch"`
		SourceProjectID  int    `json:"source_project_id"`
		TargetProjectID  int    `json:"target_project_id"`
		LastCommit       struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

func (p gitlabMergeRequestPayload) fromFork() bool {
	return p.ObjectAttributes.SourceProjectID != p.ObjectAttributes.TargetProjectID
}

// gitlabPipelinePayload is the subset of a GitLab Pipeline Hook
// hubcast needs.
type gitlabPipelinePayload struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		ID     int    `json:"id"`
		SHA    string `json:"sha"`
		Ref    string `json:"ref"`
		Status string `json:"status"`
	} `json:"object_attributes"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
		WebURL            string `json:"web_url"`
	} `json:"project"`
}
