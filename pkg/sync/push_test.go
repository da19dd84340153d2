package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LLNL/hubcast/pkg/gitwire"
)

func pktLine(s string) string {
	return fmt.Sprintf("%04x%s", len(s)+4, s)
}

// sidebandDataPktLine wraps payload as a side-band-64k channel-1
// (pack data) pkt-line, matching what a real git-upload-pack server
// sends once side-band-64k is negotiated on the want line.
func sidebandDataPktLine(payload string) string {
	return pktLine("\x01" + payload)
}

// fakePackfileResponse is a realistic side-band-64k upload-pack
// response: a NAK, one channel-1 data packet, then the terminating
// flush.
var fakePackfileResponse = pktLine("NAK\n") + sidebandDataPktLine("PACKfakepackdata") + "0000"

// fakePRChecker reports a fixed open/closed answer for every branch.
type fakePRChecker struct{ open bool }

func (f fakePRChecker) HasOpenPRForBranch(ctx context.Context, branch string) (bool, error) {
	return f.open, nil
}

// fakeRegistrar records whether EnsureWebhook was called.
type fakeRegistrar struct{ called bool }

func (f *fakeRegistrar) EnsureWebhook(ctx context.Context, callbackURL, secret string) error {
	f.called = true
	return nil
}

// newMirrorServers returns a source server that always hands back a
// packfile for fetch-pack, and a destination server that reports
// destRefsBody on ls-remote and "unpack ok" on send-pack.
func newMirrorServers(t *testing.T, destRefsBody string) (src, dest *httptest.Server) {
	t.Helper()

	src = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fakePackfileResponse)
	}))

	dest = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "service=git-receive-pack") && r.Method == http.MethodGet {
			io.WriteString(w, destRefsBody)
			return
		}
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))

	return src, dest
}

// emptyRefAdvertisement is a ref advertisement with zero refs: one
// flush pkt standing in for "no announcement line", immediately
// followed by the flush that terminates an empty ref list.
const emptyRefAdvertisement = "0000" + "0000"

func TestHandlePushSkipsWhenOpenPRCoversRef(t *testing.T) {
	t.Parallel()

	src, dest := newMirrorServers(t, emptyRefAdvertisement)
	defer src.Close()
	defer dest.Close()

	registrar := &fakeRegistrar{}
	d := DestProject{InstanceURL: dest.URL, Org: "org", Name: "repo"}

	err := HandlePush(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, fakePRChecker{open: true}, registrar, "https://cb", "secret", d, PushEvent{
		Ref:      "refs/heads/main",
		AfterSHA: "cccccccccccccccccccccccccccccccccccccccc",
	})
	if err != nil {
		t.Fatalf("HandlePush failed: %v", err)
	}
	if registrar.called {
		t.Fatal("expected webhook registration to be skipped when PR-sync owns the ref")
	}
}

func TestHandlePushMirrorsWhenNoOpenPR(t *testing.T) {
	t.Parallel()

	src, dest := newMirrorServers(t, emptyRefAdvertisement)
	defer src.Close()
	defer dest.Close()

	registrar := &fakeRegistrar{}
	d := DestProject{InstanceURL: dest.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}

	err := HandlePush(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, fakePRChecker{open: false}, registrar, "https://cb", "secret", d, PushEvent{
		Ref:      "refs/heads/main",
		AfterSHA: "cccccccccccccccccccccccccccccccccccccccc",
	})
	if err != nil {
		t.Fatalf("HandlePush failed: %v", err)
	}
	if !registrar.called {
		t.Fatal("expected webhook registration before mirroring")
	}
}

func TestHandlePushDeleteNoOpsWhenRefAlreadyAbsent(t *testing.T) {
	t.Parallel()

	src, dest := newMirrorServers(t, emptyRefAdvertisement)
	defer src.Close()
	defer dest.Close()

	d := DestProject{InstanceURL: dest.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}

	err := HandlePush(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, nil, nil, "", "", d, PushEvent{
		Ref:     "refs/heads/gone",
		Deleted: true,
	})
	if err != nil {
		t.Fatalf("expected no-op delete to succeed, got %v", err)
	}
}

func TestRefToBranch(t *testing.T) {
	t.Parallel()

	if got := refToBranch("refs/heads/main"); got != "main" {
		t.Fatalf("refToBranch = %q, want %q", got, "main")
	}
	if got := refToBranch("weird-ref"); got != "weird-ref" {
		t.Fatalf("refToBranch passthrough = %q, want %q", got, "weird-ref")
	}
}
