package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LLNL/hubcast/pkg/gitwire"
)

type fakePRFetcher struct {
	headSHA, headBranch string
	fromFork            bool
	err                 error
}

func (f fakePRFetcher) GetPRForSync(ctx context.Context, number int) (string, string, bool, error) {
	return f.headSHA, f.headBranch, f.fromFork, f.err
}

type fakeCommenter struct {
	posts     []string
	reactedOn int64
}

func (f *fakeCommenter) PostComment(ctx context.Context, number int, body string) error {
	f.posts = append(f.posts, body)
	return nil
}

func (f *fakeCommenter) AddReaction(ctx context.Context, commentID int64, reaction string) error {
	f.reactedOn = commentID
	return nil
}

type fakePipelineRunner struct {
	url string
	err error
}

func (f fakePipelineRunner) RunPipeline(ctx context.Context, destProject any, ref string) (string, error) {
	return f.url, f.err
}

func TestHandleCommentHelpPostsCanonicalMessageNoReaction(t *testing.T) {
	t.Parallel()

	commenter := &fakeCommenter{}
	err := HandleComment(context.Background(), nil, "", gitwire.Credentials{}, fakePRFetcher{}, commenter, fakePipelineRunner{}, DestProject{}, CommentEvent{
		IsPullRequest: true,
		Number:        42,
		Body:          "/HUBCAST help",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if len(commenter.posts) != 1 || commenter.posts[0] != HelpMessage {
		t.Fatalf("expected exactly the help message posted, got %+v", commenter.posts)
	}
	if commenter.reactedOn != 0 {
		t.Fatal("expected no reaction for the help command")
	}
}

func TestHandleCommentRecognizesCommandEmbeddedInLongerComment(t *testing.T) {
	t.Parallel()

	commenter := &fakeCommenter{}
	err := HandleComment(context.Background(), nil, "", gitwire.Credentials{}, fakePRFetcher{}, commenter, fakePipelineRunner{}, DestProject{}, CommentEvent{
		IsPullRequest: true,
		Number:        42,
		Body:          "thanks, /hubcast help",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if len(commenter.posts) != 1 || commenter.posts[0] != HelpMessage {
		t.Fatalf("expected the help message posted for an embedded command, got %+v", commenter.posts)
	}
}

func TestHandleCommentIgnoresNonPullRequestComments(t *testing.T) {
	t.Parallel()

	commenter := &fakeCommenter{}
	err := HandleComment(context.Background(), nil, "", gitwire.Credentials{}, fakePRFetcher{}, commenter, fakePipelineRunner{}, DestProject{}, CommentEvent{
		IsPullRequest: false,
		Body:          "/hubcast help",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if len(commenter.posts) != 0 {
		t.Fatal("expected no reply for a non-PR issue comment")
	}
}

func TestHandleCommentApproveSyncsAndReacts(t *testing.T) {
	t.Parallel()

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fakePackfileResponse)
	}))
	defer src.Close()

	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			io.WriteString(w, emptyRefAdvertisement)
			return
		}
		io.WriteString(w, pktLine("unpack ok\n")+"0000")
	}))
	defer dest.Close()

	commenter := &fakeCommenter{}
	d := DestProject{InstanceURL: dest.URL, Org: "org", Name: "repo", Username: "bot", Token: "tok"}
	fetcher := fakePRFetcher{headSHA: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", headBranch: "feature", fromFork: true}

	err := HandleComment(context.Background(), &gitwire.Client{}, src.URL, gitwire.Credentials{}, fetcher, commenter, fakePipelineRunner{}, d, CommentEvent{
		IsPullRequest: true,
		Number:        42,
		CommentID:     7,
		Body:          "/hubcast approve",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if commenter.reactedOn != 7 {
		t.Fatalf("expected a reaction on comment 7, got %d", commenter.reactedOn)
	}
}

func TestHandleCommentRunPipelineRepliesWithLink(t *testing.T) {
	t.Parallel()

	commenter := &fakeCommenter{}
	fetcher := fakePRFetcher{headSHA: "a", headBranch: "feature", fromFork: false}
	runner := fakePipelineRunner{url: "https://gl/org/repo/-/pipelines/9"}

	err := HandleComment(context.Background(), nil, "", gitwire.Credentials{}, fetcher, commenter, runner, DestProject{Org: "org", Name: "repo"}, CommentEvent{
		IsPullRequest: true,
		Number:        42,
		CommentID:     7,
		Body:          "/hubcast run pipeline",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if len(commenter.posts) != 1 {
		t.Fatalf("expected one reply, got %+v", commenter.posts)
	}
	if commenter.reactedOn != 7 {
		t.Fatal("expected a reaction after a successful pipeline trigger")
	}
}

func TestHandleCommentIgnoresUnrecognizedCommand(t *testing.T) {
	t.Parallel()

	commenter := &fakeCommenter{}
	err := HandleComment(context.Background(), nil, "", gitwire.Credentials{}, fakePRFetcher{}, commenter, fakePipelineRunner{}, DestProject{}, CommentEvent{
		IsPullRequest: true,
		Body:          "just a regular comment",
	})
	if err != nil {
		t.Fatalf("HandleComment failed: %v", err)
	}
	if len(commenter.posts) != 0 {
		t.Fatal("expected no reply for an unrecognized comment")
	}
}
