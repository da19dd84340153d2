package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/abcxyz/pkg/healthcheck"
	"github.com/abcxyz/pkg/logging"
	"github.com/google/uuid"

	"github.com/LLNL/hubcast/pkg/accountmap"
	"github.com/LLNL/hubcast/pkg/config"
	forgegithub "github.com/LLNL/hubcast/pkg/forge/github"
	forgegitlab "github.com/LLNL/hubcast/pkg/forge/gitlab"
	"github.com/LLNL/hubcast/pkg/gitlabauth"
	"github.com/LLNL/hubcast/pkg/githubauth"
	"github.com/LLNL/hubcast/pkg/gitwire"
	"github.com/LLNL/hubcast/pkg/repoconfig"
	"github.com/LLNL/hubcast/pkg/router"
	"github.com/LLNL/hubcast/pkg/secrets"
	gosync "github.com/LLNL/hubcast/pkg/sync"
	"github.com/LLNL/hubcast/pkg/version"
)

// drainTimeout bounds how long Shutdown waits for in-flight background
// tasks before giving up.
const drainTimeout = 30 * time.Second

// Server holds the long-lived dependencies the two ingress endpoints
// share: resolved account map, repo-config cache, git-wire client, and
// the forge authenticators needed to mint per-event credentials.
type Server struct {
	cfg *config.Config

	accountMap  accountmap.Map
	repoConfigs *repoconfig.Cache
	wire        *gitwire.Client
	table       *router.Table

	githubAuth   *githubauth.Authenticator
	destGLAuth   *gitlabauth.Authenticator

	wg sync.WaitGroup
}

// NewServer constructs a Server, resolving the configured account map
// (fatal on construction error) and the configured source-forge
// authenticator.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	// These settings may be given as Secret Manager resource names.
	for _, v := range []*string{
		&cfg.LDAPBindPassword,
		&cfg.GitHubWebhookSecret,
		&cfg.SrcGitLabToken,
		&cfg.SrcGitLabWebhookSecret,
		&cfg.DestGitLabAccessToken,
		&cfg.DestGitLabWebhookSecret,
	} {
		resolved, err := secrets.Resolve(ctx, *v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret: %w", err)
		}
		*v = resolved
	}

	am, err := buildAccountMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to construct account map: %w", err)
	}

	destGLAuth, err := gitlabauth.New(cfg.DestGitLabURL, cfg.DestGitLabAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to construct destination gitlab authenticator: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		accountMap:  am,
		repoConfigs: repoconfig.New(),
		wire:        &gitwire.Client{},
		table:       buildRouterTable(),
		destGLAuth:  destGLAuth,
	}

	if cfg.SrcService == "github" {
		githubAuth, err := githubauth.New(ctx, githubauth.Config{
			AppID:      cfg.GitHubAppID,
			PrivateKey: cfg.GitHubPrivateKey,
			Requester:  cfg.GitHubRequester,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to construct github authenticator: %w", err)
		}
		s.githubAuth = githubAuth
	}

	return s, nil
}

func buildAccountMap(cfg *config.Config) (accountmap.Map, error) {
	switch cfg.AccountMapType {
	case "file":
		return accountmap.NewFileMap(cfg.AccountMapPath)
	case "ldap":
		return accountmap.NewLDAPMap(cfg.AccountMapPath, cfg.LDAPBindDN, cfg.LDAPBindPassword, cfg.LDAPBaseDN, cfg.LDAPSourceAttr, cfg.LDAPDestAttr), nil
	case "gitlab_oauth":
		return accountmap.NewGitLabOAuthMap(cfg.DestGitLabURL, cfg.DestGitLabAccessToken, cfg.GitLabOAuthProvider)
	default:
		return nil, fmt.Errorf("unknown account map type %q", cfg.AccountMapType)
	}
}

// Routes builds the full ServeMux: health check, version, and the two
// webhook endpoints, wrapped in the structured-logging HTTP interceptor.
func (s *Server) Routes(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthcheck.HandleHTTPHealthCheck())
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":%q}`, version.HumanVersion)
	})
	mux.HandleFunc("/v1/events/src/github", s.handleSourceEvent("github"))
	mux.HandleFunc("/v1/events/src/gitlab", s.handleSourceEvent("gitlab"))
	mux.HandleFunc("/v1/events/dest/gitlab", s.handleDestEvent)

	return logging.HTTPInterceptor(logger, "")(mux)
}

// Shutdown waits (up to drainTimeout) for in-flight background tasks
// spawned by the ingress handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("timed out after %s waiting for background tasks to drain", drainTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) spawn(dispatch func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dispatch()
	}()
}

// handleSourceEvent verifies the source webhook's signature, resolves
// the sending identity through the account map (benign-absent ⇒ 200),
// builds source/destination clients, and spawns the router dispatch.
func (s *Server) handleSourceEvent(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).With("request_id", uuid.NewString())

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusInternalServerError)
			return
		}

		var senderLogin, repoFullname string
		var handle func(ctx context.Context, destUser string) error

		switch service {
		case "github":
			if err := verifyGitHubSignature(r.Header.Get("X-Hub-Signature-256"), body, s.cfg.GitHubWebhookSecret); err != nil {
				logger.ErrorContext(ctx, "github signature validation failed", "error", err)
				http.Error(w, "signature validation failed", http.StatusInternalServerError)
				return
			}
			senderLogin, repoFullname, handle, err = s.prepareGitHubDispatch(ctx, r.Header.Get("X-GitHub-Event"), body)
		case "gitlab":
			if err := verifyGitLabToken(r.Header.Get("X-Gitlab-Token"), s.cfg.SrcGitLabWebhookSecret); err != nil {
				logger.ErrorContext(ctx, "gitlab token validation failed", "error", err)
				http.Error(w, "signature validation failed", http.StatusInternalServerError)
				return
			}
			senderLogin, repoFullname, handle, err = s.prepareGitLabDispatch(ctx, r.Header.Get("X-Gitlab-Event"), body)
		default:
			http.Error(w, "unknown source service", http.StatusInternalServerError)
			return
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to construct event", "error", err, "service", service)
			http.Error(w, "failed to construct event", http.StatusInternalServerError)
			return
		}
		if handle == nil {
			// Unhandled event kind: benign skip.
			w.WriteHeader(http.StatusOK)
			return
		}

		destUser, ok, err := s.accountMap.Lookup(ctx, senderLogin)
		if err != nil {
			logger.ErrorContext(ctx, "account map lookup failed", "error", err, "sender", senderLogin)
			http.Error(w, "account map lookup failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			logger.InfoContext(ctx, "sender absent from account map, skipping", "sender", senderLogin, "repo", repoFullname)
			w.WriteHeader(http.StatusOK)
			return
		}
		bgCtx := logging.WithLogger(context.Background(), logger)
		s.spawn(func() { _ = handle(bgCtx, destUser) })
		w.WriteHeader(http.StatusOK)
	}
}

// handleDestEvent verifies the destination webhook secret, extracts
// the source-identifying query parameters, and relays pipeline status.
func (s *Server) handleDestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx).With("request_id", uuid.NewString())

	if err := verifyGitLabToken(r.Header.Get("X-Gitlab-Token"), s.cfg.DestGitLabWebhookSecret); err != nil {
		logger.ErrorContext(ctx, "destination gitlab token validation failed", "error", err)
		http.Error(w, "signature validation failed", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusInternalServerError)
		return
	}

	var payload gitlabPipelinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.ErrorContext(ctx, "failed to parse pipeline hook payload", "error", err)
		http.Error(w, "failed to parse payload", http.StatusInternalServerError)
		return
	}
	if payload.ObjectKind != "pipeline" {
		w.WriteHeader(http.StatusOK) // benign: not a pipeline hook
		return
	}

	q := r.URL.Query()
	srcService := q.Get("src_service")
	checkName := q.Get("src_check_name")

	checkClient, err := s.buildSourceCheckClient(ctx, srcService, q)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build source check client", "error", err)
		http.Error(w, "failed to build source client", http.StatusInternalServerError)
		return
	}

	dc := &dispatchContext{
		checkClient: checkClient,
		srcService:  srcService,
		sha:         payload.ObjectAttributes.SHA,
		checkName:   checkName,
		status:      payload.ObjectAttributes.Status,
		detailsURL:  fmt.Sprintf("%s/-/pipelines/%d", payload.Project.WebURL, payload.ObjectAttributes.ID),
	}
	event := router.Event{Kind: "pipeline_status", Payload: dc}

	bgCtx := logging.WithLogger(context.Background(), logger)
	s.spawn(func() { s.table.Dispatch(bgCtx, event) })
	w.WriteHeader(http.StatusOK)
}

// destProjectClient builds a Client scoped to dest's destination
// project, authenticated as the impersonated destination user. Used
// both to register the callback webhook and to trigger pipeline runs
// on the destination project.
func (s *Server) destProjectClient(dest gosync.DestProject) (*forgegitlab.Client, error) {
	return forgegitlab.New(s.cfg.DestGitLabURL, dest.Token, dest.Org+"/"+dest.Name)
}

// githubDestCallbackURL is the destination-webhook URL registered for
// a GitHub-sourced repository, carrying enough query-string context
// for handleDestEvent to route a pipeline status back to owner/repo.
func githubDestCallbackURL(base, owner, repo, checkName string) string {
	return fmt.Sprintf("%s?src_service=github&src_owner=%s&src_repo_name=%s&src_check_name=%s",
		trimTrailingSlash(base), owner, repo, checkName)
}

// gitlabDestCallbackURL is the destination-webhook URL registered for
// a GitLab-sourced project. project is the "group/project" path,
// which the GitLab REST API accepts as a project identifier the same
// as a numeric id.
func gitlabDestCallbackURL(base, project, checkName string) string {
	return fmt.Sprintf("%s?src_service=gitlab&src_project=%s&src_check_name=%s",
		trimTrailingSlash(base), url.QueryEscape(project), checkName)
}

func trimTrailingSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

func (s *Server) buildSourceCheckClient(ctx context.Context, srcService string, q map[string][]string) (gosync.SourceCheckClient, error) {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	switch srcService {
	case "github":
		owner, repo := get("src_owner"), get("src_repo_name")
		token, err := s.githubAuth.AuthenticateInstallation(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate github installation for %s/%s: %w", owner, repo, err)
		}
		return forgegithub.New(ctx, owner, repo, token), nil
	case "gitlab":
		project := get("src_project")
		return forgegitlab.New(s.cfg.SrcGitLabURL, s.cfg.SrcGitLabToken, project)
	default:
		return nil, fmt.Errorf("unknown src_service %q", srcService)
	}
}
