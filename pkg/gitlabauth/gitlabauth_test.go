package gitlabauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDateAfterDays(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, time.March, 4, 15, 30, 0, 0, time.UTC)
	got := dateAfterDays(from, 1)
	want := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("dateAfterDays() = %v, want %v", got, want)
	}
}

func TestAuthenticateUserCachesByUsername(t *testing.T) {
	t.Parallel()

	var userLookups, tokenMints int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v4/users":
			userLookups++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]map[string]any{{"id": 42, "username": "alice"}})
		case r.URL.Path == "/api/v4/users/42/impersonation_tokens":
			tokenMints++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"id": 1, "token": "glpat-fake"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := New(srv.URL, "admin-token")
	if err != nil {
		t.Fatalf("failed to construct authenticator: %v", err)
	}

	tok1, err := a.AuthenticateUser(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("AuthenticateUser failed: %v", err)
	}
	if tok1 != "glpat-fake" {
		t.Fatalf("token = %q, want glpat-fake", tok1)
	}

	tok2, err := a.AuthenticateUser(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("AuthenticateUser failed: %v", err)
	}
	if tok2 != tok1 {
		t.Fatalf("expected cached token to be reused")
	}

	if userLookups != 1 || tokenMints != 1 {
		t.Fatalf("userLookups=%d tokenMints=%d, want 1,1 (cache should avoid repeated lookups)", userLookups, tokenMints)
	}
}
