package hcerr

import (
	"errors"
	"testing"
)

func TestUpstreamErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("rate limited")
	err := NewUpstreamError("failed to set check status", inner)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatal("expected errors.As to find an *UpstreamError")
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to unwrap to the wrapped error")
	}
}

func TestGitWireErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("ng refs/heads/main non-fast-forward")
	err := NewGitWireError("send-pack rejected", inner)

	var wireErr *GitWireError
	if !errors.As(err, &wireErr) {
		t.Fatal("expected errors.As to find a *GitWireError")
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to unwrap to the wrapped error")
	}
}

func TestInvalidRepoConfigErrorMessage(t *testing.T) {
	t.Parallel()

	inner := errors.New("yaml: line 3: mapping values are not allowed in this context")
	err := NewInvalidRepoConfigError("acme/widget", inner)

	want := "invalid repo config for acme/widget: yaml: line 3: mapping values are not allowed in this context"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConfigAndSignatureErrorsCarryMessage(t *testing.T) {
	t.Parallel()

	if got, want := NewConfigError("missing %s", "HC_GL_URL").Error(), "config error: missing HC_GL_URL"; got != want {
		t.Errorf("ConfigError.Error() = %q, want %q", got, want)
	}
	if got, want := NewSignatureError("hmac mismatch").Error(), "signature validation failed: hmac mismatch"; got != want {
		t.Errorf("SignatureError.Error() = %q, want %q", got, want)
	}
}
