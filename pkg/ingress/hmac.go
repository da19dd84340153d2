package ingress

import (
	"crypto/subtle"

	"github.com/google/go-github/v56/github"

	"github.com/LLNL/hubcast/pkg/hcerr"
)

// verifyGitHubSignature validates body against the X-Hub-Signature-256
// header using go-github's constant-time HMAC-SHA256 comparison.
func verifyGitHubSignature(signature string, body []byte, secret string) error {
	if err := github.ValidateSignature(signature, body, []byte(secret)); err != nil {
		return hcerr.NewSignatureError("github signature validation failed: %v", err)
	}
	return nil
}

// verifyGitLabToken validates the X-Gitlab-Token header by equality
// against the configured secret, per GitLab's webhook verification
// scheme (no HMAC; the header carries the shared secret directly).
func verifyGitLabToken(token, secret string) error {
	if token == "" || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return hcerr.NewSignatureError("gitlab token validation failed")
	}
	return nil
}
