// Package config defines hubcast's environment-variable-driven
// bootstrap configuration: an env-tagged struct loaded via
// cfgloader.Load, validated, and bound to CLI flags.
package config

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
	"github.com/sethvargo/go-envconfig"
)

// Config is the full set of environment variables hubcast requires to
// start. Which of the GitHub/GitLab source fields are required depends
// on SrcService.
type Config struct {
	Port              string `env:"HC_PORT,default=8080"`
	AccountMapType    string `env:"HC_ACCOUNT_MAP_TYPE,required"` // file | ldap | gitlab_oauth
	AccountMapPath    string `env:"HC_ACCOUNT_MAP_PATH"`          // file path, or LDAP URL
	LoggingConfigPath string `env:"HC_LOGGING_CONFIG_PATH"`

	LDAPBindDN        string `env:"HC_ACCOUNT_MAP_LDAP_BIND_DN"`
	LDAPBindPassword  string `env:"HC_ACCOUNT_MAP_LDAP_BIND_PASSWORD"`
	LDAPBaseDN        string `env:"HC_ACCOUNT_MAP_LDAP_BASE_DN"`
	LDAPSourceAttr    string `env:"HC_ACCOUNT_MAP_LDAP_SOURCE_ATTR,default=mail"`
	LDAPDestAttr      string `env:"HC_ACCOUNT_MAP_LDAP_DEST_ATTR,default=uid"`
	GitLabOAuthProvider string `env:"HC_ACCOUNT_MAP_GITLAB_OAUTH_PROVIDER,default=github"`

	SrcService string `env:"HC_SRC_SERVICE,required"` // github | gitlab

	GitHubAppID         string `env:"HC_GH_APP_IDENTIFIER"`
	GitHubPrivateKey    string `env:"HC_GH_PRIVATE_KEY"`
	GitHubRequester     string `env:"HC_GH_REQUESTER"`
	GitHubWebhookSecret string `env:"HC_GH_SECRET"`
	GitHubBotUser       string `env:"HC_GH_BOT_USER"`

	SrcGitLabURL           string `env:"HC_SRC_GL_URL"`
	SrcGitLabToken         string `env:"HC_SRC_GL_TOKEN"`
	SrcGitLabRequester     string `env:"HC_SRC_GL_REQUESTER"`
	SrcGitLabWebhookSecret string `env:"HC_SRC_GL_SECRET"`

	DestGitLabURL           string `env:"HC_GL_URL,required"`
	DestGitLabRequester     string `env:"HC_GL_REQUESTER,required"`
	DestGitLabAccessToken   string `env:"HC_GL_ACCESS_TOKEN,required"`
	DestGitLabTokenType     string `env:"HC_GL_TOKEN_TYPE,default=impersonation"`
	DestGitLabWebhookSecret string `env:"HC_GL_SECRET,required"`
	DestGitLabCallbackURL   string `env:"HC_GL_CALLBACK_URL,required"`
}

// Validate validates the config after load, enforcing requirements
// that are conditional on which source forge is configured.
func (cfg *Config) Validate() error {
	if cfg.AccountMapType == "" {
		return fmt.Errorf("HC_ACCOUNT_MAP_TYPE is required")
	}
	if cfg.AccountMapType != "gitlab_oauth" && cfg.AccountMapPath == "" {
		return fmt.Errorf("HC_ACCOUNT_MAP_PATH is required for account-map type %q", cfg.AccountMapType)
	}

	switch cfg.SrcService {
	case "github":
		if cfg.GitHubAppID == "" {
			return fmt.Errorf("HC_GH_APP_IDENTIFIER is required when HC_SRC_SERVICE=github")
		}
		if cfg.GitHubPrivateKey == "" {
			return fmt.Errorf("HC_GH_PRIVATE_KEY is required when HC_SRC_SERVICE=github")
		}
		if cfg.GitHubRequester == "" {
			return fmt.Errorf("HC_GH_REQUESTER is required when HC_SRC_SERVICE=github")
		}
		if cfg.GitHubWebhookSecret == "" {
			return fmt.Errorf("HC_GH_SECRET is required when HC_SRC_SERVICE=github")
		}
	case "gitlab":
		if cfg.SrcGitLabURL == "" {
			return fmt.Errorf("HC_SRC_GL_URL is required when HC_SRC_SERVICE=gitlab")
		}
		if cfg.SrcGitLabToken == "" {
			return fmt.Errorf("HC_SRC_GL_TOKEN is required when HC_SRC_SERVICE=gitlab")
		}
		if cfg.SrcGitLabWebhookSecret == "" {
			return fmt.Errorf("HC_SRC_GL_SECRET is required when HC_SRC_SERVICE=gitlab")
		}
	default:
		return fmt.Errorf("HC_SRC_SERVICE must be %q or %q, got %q", "github", "gitlab", cfg.SrcService)
	}

	if cfg.DestGitLabURL == "" {
		return fmt.Errorf("HC_GL_URL is required")
	}
	if cfg.DestGitLabAccessToken == "" {
		return fmt.Errorf("HC_GL_ACCESS_TOKEN is required")
	}
	if cfg.DestGitLabWebhookSecret == "" {
		return fmt.Errorf("HC_GL_SECRET is required")
	}
	if cfg.DestGitLabCallbackURL == "" {
		return fmt.Errorf("HC_GL_CALLBACK_URL is required")
	}

	return nil
}

// NewConfig creates a new Config from environment variables.
func NewConfig(ctx context.Context) (*Config, error) {
	return newConfig(ctx, envconfig.OsLookuper())
}

func newConfig(ctx context.Context, lu envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := cfgloader.Load(ctx, &cfg, cfgloader.WithLookuper(lu)); err != nil {
		return nil, fmt.Errorf("failed to parse hubcast server config: %w", err)
	}
	return &cfg, nil
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("SERVER OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &cfg.Port,
		EnvVar:  "HC_PORT",
		Default: "8080",
		Usage:   `The port the hubcast server listens on.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "account-map-type",
		Target: &cfg.AccountMapType,
		EnvVar: "HC_ACCOUNT_MAP_TYPE",
		Usage:  `Account map implementation: file, ldap, or gitlab_oauth.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "account-map-path",
		Target: &cfg.AccountMapPath,
		EnvVar: "HC_ACCOUNT_MAP_PATH",
		Usage:  `Path to the account-map YAML file, or LDAP URL.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "account-map-ldap-bind-dn",
		Target: &cfg.LDAPBindDN,
		EnvVar: "HC_ACCOUNT_MAP_LDAP_BIND_DN",
		Usage:  `LDAP bind DN, for account-map type ldap.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "account-map-ldap-bind-password",
		Target: &cfg.LDAPBindPassword,
		EnvVar: "HC_ACCOUNT_MAP_LDAP_BIND_PASSWORD",
		Usage:  `LDAP bind password, or a Secret Manager resource name.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "account-map-ldap-base-dn",
		Target: &cfg.LDAPBaseDN,
		EnvVar: "HC_ACCOUNT_MAP_LDAP_BASE_DN",
		Usage:  `LDAP search base DN.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "account-map-ldap-source-attr",
		Target:  &cfg.LDAPSourceAttr,
		EnvVar:  "HC_ACCOUNT_MAP_LDAP_SOURCE_ATTR",
		Default: "mail",
		Usage:   `LDAP attribute matched against the source identity.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "account-map-ldap-dest-attr",
		Target:  &cfg.LDAPDestAttr,
		EnvVar:  "HC_ACCOUNT_MAP_LDAP_DEST_ATTR",
		Default: "uid",
		Usage:   `LDAP attribute returned as the destination username.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "account-map-gitlab-oauth-provider",
		Target:  &cfg.GitLabOAuthProvider,
		EnvVar:  "HC_ACCOUNT_MAP_GITLAB_OAUTH_PROVIDER",
		Default: "github",
		Usage:   `OAuth provider name registered on destination GitLab identities, for account-map type gitlab_oauth.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "logging-config-path",
		Target: &cfg.LoggingConfigPath,
		EnvVar: "HC_LOGGING_CONFIG_PATH",
		Usage:  `Path to a structured-logging configuration file.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "src-service",
		Target: &cfg.SrcService,
		EnvVar: "HC_SRC_SERVICE",
		Usage:  `Source forge: github or gitlab.`,
	})

	gh := set.NewSection("GITHUB SOURCE OPTIONS")

	gh.StringVar(&cli.StringVar{
		Name:   "gh-app-identifier",
		Target: &cfg.GitHubAppID,
		EnvVar: "HC_GH_APP_IDENTIFIER",
		Usage:  `GitHub App ID.`,
	})

	gh.StringVar(&cli.StringVar{
		Name:   "gh-private-key",
		Target: &cfg.GitHubPrivateKey,
		EnvVar: "HC_GH_PRIVATE_KEY",
		Usage:  `GitHub App private key PEM, or a Secret Manager resource name.`,
	})

	gh.StringVar(&cli.StringVar{
		Name:   "gh-requester",
		Target: &cfg.GitHubRequester,
		EnvVar: "HC_GH_REQUESTER",
		Usage:  `User-Agent sent on GitHub API requests.`,
	})

	gh.StringVar(&cli.StringVar{
		Name:   "gh-secret",
		Target: &cfg.GitHubWebhookSecret,
		EnvVar: "HC_GH_SECRET",
		Usage:  `GitHub webhook secret, or a Secret Manager resource name.`,
	})

	gh.StringVar(&cli.StringVar{
		Name:   "gh-bot-user",
		Target: &cfg.GitHubBotUser,
		EnvVar: "HC_GH_BOT_USER",
		Usage:  `GitHub login hubcast comments and reacts as.`,
	})

	srcGL := set.NewSection("GITLAB SOURCE OPTIONS")

	srcGL.StringVar(&cli.StringVar{
		Name:   "src-gl-url",
		Target: &cfg.SrcGitLabURL,
		EnvVar: "HC_SRC_GL_URL",
		Usage:  `Source GitLab instance URL.`,
	})

	srcGL.StringVar(&cli.StringVar{
		Name:   "src-gl-token",
		Target: &cfg.SrcGitLabToken,
		EnvVar: "HC_SRC_GL_TOKEN",
		Usage:  `Source GitLab access token, or a Secret Manager resource name.`,
	})

	srcGL.StringVar(&cli.StringVar{
		Name:   "src-gl-requester",
		Target: &cfg.SrcGitLabRequester,
		EnvVar: "HC_SRC_GL_REQUESTER",
		Usage:  `Identity used for source GitLab API calls.`,
	})

	srcGL.StringVar(&cli.StringVar{
		Name:   "src-gl-secret",
		Target: &cfg.SrcGitLabWebhookSecret,
		EnvVar: "HC_SRC_GL_SECRET",
		Usage:  `Source GitLab webhook secret, or a Secret Manager resource name.`,
	})

	destGL := set.NewSection("GITLAB DESTINATION OPTIONS")

	destGL.StringVar(&cli.StringVar{
		Name:   "gl-url",
		Target: &cfg.DestGitLabURL,
		EnvVar: "HC_GL_URL",
		Usage:  `Destination GitLab instance URL.`,
	})

	destGL.StringVar(&cli.StringVar{
		Name:   "gl-requester",
		Target: &cfg.DestGitLabRequester,
		EnvVar: "HC_GL_REQUESTER",
		Usage:  `Identity used for destination GitLab API calls.`,
	})

	destGL.StringVar(&cli.StringVar{
		Name:   "gl-access-token",
		Target: &cfg.DestGitLabAccessToken,
		EnvVar: "HC_GL_ACCESS_TOKEN",
		Usage:  `Destination GitLab admin access token, or a Secret Manager resource name.`,
	})

	destGL.StringVar(&cli.StringVar{
		Name:    "gl-token-type",
		Target:  &cfg.DestGitLabTokenType,
		EnvVar:  "HC_GL_TOKEN_TYPE",
		Default: "impersonation",
		Usage:   `Destination GitLab token type.`,
	})

	destGL.StringVar(&cli.StringVar{
		Name:   "gl-secret",
		Target: &cfg.DestGitLabWebhookSecret,
		EnvVar: "HC_GL_SECRET",
		Usage:  `Destination GitLab webhook secret, or a Secret Manager resource name.`,
	})

	destGL.StringVar(&cli.StringVar{
		Name:   "gl-callback-url",
		Target: &cfg.DestGitLabCallbackURL,
		EnvVar: "HC_GL_CALLBACK_URL",
		Usage:  `Base URL hubcast registers as the destination→source callback webhook.`,
	})

	return set
}
