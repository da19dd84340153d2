package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LLNL/hubcast/pkg/gitwire"
)

// fakeVisibilityChecker returns a fixed visibility level for every project.
type fakeVisibilityChecker struct{ level int }

func (f fakeVisibilityChecker) ProjectVisibilityLevel(ctx context.Context, projectID any) (int, error) {
	return f.level, nil
}

func TestHandlePRSyncForkTargetsSynthesizedBranch(t *testing.T) {
	t.Parallel()

	src, dest := newMirrorServers(t, emptyRefAdvertisement)
	defer src.Close()
	defer dest.Close()

	var sentRef, sentUpdate string
	destWithCapture := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, emptyRefAdvertisement)
			return
		}
		sentRef = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		sentUpdate = string(body)
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))
	defer destWithCapture.Close()

	d := DestProject{InstanceURL: destWithCapture.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}

	err := HandlePRSync(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, nil, d, PRSyncEvent{
		Service:    "github",
		Number:     42,
		HeadSHA:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		HeadBranch: "feature",
		FromFork:   true,
	})
	if err != nil {
		t.Fatalf("HandlePRSync failed: %v", err)
	}
	if sentRef != "/git-receive-pack" {
		t.Fatalf("expected a send-pack request, got path %q", sentRef)
	}
	if !strings.Contains(sentUpdate, " refs/heads/pr-42\x00") {
		t.Fatalf("expected the update command to target refs/heads/pr-42, got %q", sentUpdate)
	}
}

func TestHandlePRSyncAbortsOnPrivateGitLabFork(t *testing.T) {
	t.Parallel()

	src, dest := newMirrorServers(t, emptyRefAdvertisement)
	defer src.Close()
	defer dest.Close()

	var sendPackCalled bool
	destWithCapture := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, emptyRefAdvertisement)
			return
		}
		sendPackCalled = true
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))
	defer destWithCapture.Close()

	d := DestProject{InstanceURL: destWithCapture.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}

	err := HandlePRSync(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, fakeVisibilityChecker{level: 0}, d, PRSyncEvent{
		Service:       "gitlab",
		Number:        7,
		HeadSHA:       "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		HeadBranch:    "feature",
		FromFork:      true,
		ForkProjectID: 99,
	})
	if err != nil {
		t.Fatalf("expected private-fork abort to return nil error, got %v", err)
	}
	if sendPackCalled {
		t.Fatal("expected no send-pack call for a private fork")
	}
}

func TestHandlePRCloseDeletesForkBranchOnly(t *testing.T) {
	t.Parallel()

	var sentUpdate string
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, pktLine("# service=git-receive-pack\n")+"0000"+
				pktLine("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb refs/heads/pr-42\n")+"0000")
			return
		}
		body, _ := io.ReadAll(r.Body)
		sentUpdate = string(body)
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))
	defer dest.Close()

	d := DestProject{InstanceURL: dest.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}

	err := HandlePRClose(context.Background(), &gitwire.Client{}, d, PRSyncEvent{
		Service:  "github",
		Number:   42,
		FromFork: true,
	})
	if err != nil {
		t.Fatalf("HandlePRClose failed: %v", err)
	}
	if sentUpdate == "" {
		t.Fatal("expected a send-pack delete for a fork PR")
	}

	var noop bool
	dest2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, emptyRefAdvertisement)
			return
		}
		noop = true
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))
	defer dest2.Close()

	d2 := DestProject{InstanceURL: dest2.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}
	if err := HandlePRClose(context.Background(), &gitwire.Client{}, d2, PRSyncEvent{Service: "github", Number: 42, FromFork: false}); err != nil {
		t.Fatalf("HandlePRClose (non-fork) failed: %v", err)
	}
	if noop {
		t.Fatal("expected no send-pack call for a non-fork PR close")
	}
}
