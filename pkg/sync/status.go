package sync

import "context"

// GitHubStatus is the translated GitHub check-run status/conclusion
// pair for a destination GitLab pipeline status.
type GitHubStatus struct {
	Status     string
	Conclusion string // empty when the check is not yet completed
}

// statusTranslation is the total mapping from GitLab Pipeline Hook
// status to GitHub check-run vocabulary.
var statusTranslation = map[string]GitHubStatus{
	"pending":  {Status: "queued"},
	"running":  {Status: "in_progress"},
	"success":  {Status: "completed", Conclusion: "success"},
	"failed":   {Status: "completed", Conclusion: "failure"},
	"canceled": {Status: "completed", Conclusion: "cancelled"},
}

// TranslateStatus converts a GitLab pipeline status into the GitHub
// check-run status/conclusion pair. An unrecognized status returns
// ok=false; callers should treat this as a benign skip.
func TranslateStatus(glStatus string) (GitHubStatus, bool) {
	s, ok := statusTranslation[glStatus]
	return s, ok
}

// SourceCheckClient is the subset of a forge client needed to relay a
// pipeline status back to the source.
type SourceCheckClient interface {
	SetCheckStatus(ctx context.Context, sha, checkName, status, conclusion, detailsURL string) error
}

// RelayStatus translates a GitLab pipeline status and reports it on
// the source commit via src.SetCheckStatus. When srcService is
// "gitlab", the status is passed through unchanged rather than
// translated.
func RelayStatus(ctx context.Context, src SourceCheckClient, srcService, sha, checkName, glStatus, detailsURL string) error {
	if srcService == "gitlab" {
		return src.SetCheckStatus(ctx, sha, checkName, glStatus, "", detailsURL)
	}

	translated, ok := TranslateStatus(glStatus)
	if !ok {
		return nil // benign skip: unrecognized pipeline status
	}
	return src.SetCheckStatus(ctx, sha, checkName, translated.Status, translated.Conclusion, detailsURL)
}
