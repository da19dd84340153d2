// Package hcerr defines the error taxonomy used to translate internal
// failures into the HTTP responses and exit behavior described by the
// error handling design: config errors are fatal at startup, signature
// failures and upstream/git-wire failures surface as 500s, and invalid
// repo config aborts a single event without populating the cache.
package hcerr

import "fmt"

// ConfigError indicates missing or invalid bootstrap configuration.
// Callers should treat this as fatal.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// NewConfigError wraps a message as a ConfigError.
func NewConfigError(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// SignatureError indicates a webhook payload failed HMAC verification.
type SignatureError struct {
	Msg string
}

func (e *SignatureError) Error() string { return "signature validation failed: " + e.Msg }

// NewSignatureError wraps a message as a SignatureError.
func NewSignatureError(format string, args ...any) error {
	return &SignatureError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError indicates a non-2xx response, or other failure, from a
// GitHub or GitLab REST call.
type UpstreamError struct {
	Msg string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error: %s: %v", e.Msg, e.Err)
	}
	return "upstream error: " + e.Msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError wraps an error from a REST call.
func NewUpstreamError(msg string, err error) error {
	return &UpstreamError{Msg: msg, Err: err}
}

// GitWireError indicates a failure of the smart-HTTP git protocol:
// an `ng` report-status line, a non-fast-forward rejection, or an
// authentication denial.
type GitWireError struct {
	Msg string
	Err error
}

func (e *GitWireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("git wire error: %s: %v", e.Msg, e.Err)
	}
	return "git wire error: " + e.Msg
}

func (e *GitWireError) Unwrap() error { return e.Err }

// NewGitWireError wraps an error encountered during ls-remote,
// fetch-pack, or send-pack.
func NewGitWireError(msg string, err error) error {
	return &GitWireError{Msg: msg, Err: err}
}

// NotFoundError indicates a REST call returned a genuine HTTP 404, as
// opposed to any other upstream failure. Callers use this to decide
// whether a missing resource should fall back to a default instead of
// surfacing as an UpstreamError.
type NotFoundError struct {
	Msg string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not found: %s: %v", e.Msg, e.Err)
	}
	return "not found: " + e.Msg
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// NewNotFoundError wraps an error known to correspond to an HTTP 404.
func NewNotFoundError(msg string, err error) error {
	return &NotFoundError{Msg: msg, Err: err}
}

// InvalidRepoConfigError indicates `.github/hubcast.yml` (or
// equivalent) failed to parse.
type InvalidRepoConfigError struct {
	Fullname string
	Err      error
}

func (e *InvalidRepoConfigError) Error() string {
	return fmt.Sprintf("invalid repo config for %s: %v", e.Fullname, e.Err)
}

func (e *InvalidRepoConfigError) Unwrap() error { return e.Err }

// NewInvalidRepoConfigError wraps a YAML parse failure for a repo.
func NewInvalidRepoConfigError(fullname string, err error) error {
	return &InvalidRepoConfigError{Fullname: fullname, Err: err}
}
