package ingress

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LLNL/hubcast/pkg/config"
	"github.com/LLNL/hubcast/pkg/router"
)

func TestTrimTrailingSlash(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://gitlab.example.com/": "https://gitlab.example.com",
		"https://gitlab.example.com":  "https://gitlab.example.com",
		"": "",
	}
	for in, want := range cases {
		if got := trimTrailingSlash(in); got != want {
			t.Errorf("trimTrailingSlash(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGithubDestCallbackURL(t *testing.T) {
	t.Parallel()

	got := githubDestCallbackURL("https://hubcast.example.com/v1/events/dest/gitlab/", "acme", "widget", "ci/hubcast")
	want := "https://hubcast.example.com/v1/events/dest/gitlab?src_service=github&src_owner=acme&src_repo_name=widget&src_check_name=ci/hubcast"
	if got != want {
		t.Errorf("githubDestCallbackURL() = %q, want %q", got, want)
	}
}

func TestGitlabDestCallbackURL(t *testing.T) {
	t.Parallel()

	got := gitlabDestCallbackURL("https://hubcast.example.com/v1/events/dest/gitlab", "group/sub/widget", "ci/hubcast")
	want := "https://hubcast.example.com/v1/events/dest/gitlab?src_service=gitlab&src_project=group%2Fsub%2Fwidget&src_check_name=ci/hubcast"
	if got != want {
		t.Errorf("gitlabDestCallbackURL() = %q, want %q", got, want)
	}
}

// stubAccountMap is a minimal accountmap.Map test double.
type stubAccountMap struct {
	dest string
	ok   bool
	err  error
}

func (m *stubAccountMap) Lookup(ctx context.Context, src string) (string, bool, error) {
	return m.dest, m.ok, m.err
}

func newTestServer(am *stubAccountMap) *Server {
	return &Server{
		cfg:        &config.Config{},
		accountMap: am,
		table:      router.New(nil),
	}
}

func TestHandleSourceEventInvalidSignature(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubAccountMap{ok: true, dest: "bob"})
	s.cfg.GitHubWebhookSecret = "correct-secret"

	body := []byte(`{"action":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/src/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", signBody("wrong-secret", body))

	resp := httptest.NewRecorder()
	s.handleSourceEvent("github")(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Errorf("expected %d for invalid signature, got %d", http.StatusInternalServerError, resp.Code)
	}
}

func TestHandleSourceEventUnhandledEventKind(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubAccountMap{ok: true, dest: "bob"})
	s.cfg.GitHubWebhookSecret = "correct-secret"

	body := []byte(`{"repository":{"full_name":"acme/widget"},"sender":{"login":"alice"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/src/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "star") // unhandled event kind
	req.Header.Set("X-Hub-Signature-256", signBody("correct-secret", body))

	resp := httptest.NewRecorder()
	s.handleSourceEvent("github")(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("expected %d for an unhandled event kind, got %d", http.StatusOK, resp.Code)
	}
}

func TestHandleSourceEventSenderAbsentFromAccountMap(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubAccountMap{ok: false})
	s.cfg.GitHubWebhookSecret = "correct-secret"

	body := []byte(`{"ref":"refs/heads/main","after":"deadbeef","repository":{"full_name":"acme/widget"},"sender":{"login":"ghost"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/src/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", signBody("correct-secret", body))

	resp := httptest.NewRecorder()
	s.handleSourceEvent("github")(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("expected %d for a sender absent from the account map, got %d", http.StatusOK, resp.Code)
	}
}
