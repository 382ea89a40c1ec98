// Package apiclient is the entry point for building a ready-to-use api.Client:
// it normalizes configuration, wires the pooled HTTP transport and a credential
// source, and loads settings from the environment or a config file through
// viper.
//
// Quick start
//
//	client, err := apiclient.New(&api.Config{
//	  APIEndpoint:  "api.example.com/v1",
//	  AccessToken:  sensitive.Raw(os.Getenv("API_TOKEN")),
//	  Organization: "acme",
//	})
//	if err != nil { log.Fatal(err) }
//
//	db, err := getDatabase.CallWithRetry(ctx, client, in, apiclient.WithRetryLogging(retry.Default(), logger))
package apiclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/restkit/internal/auth"
	"github.com/fivetwenty-io/restkit/internal/constants"
	restkithttp "github.com/fivetwenty-io/restkit/internal/http"
	"github.com/fivetwenty-io/restkit/pkg/api"
	"github.com/fivetwenty-io/restkit/pkg/retry"
	"github.com/fivetwenty-io/restkit/pkg/sensitive"
	"github.com/spf13/viper"
)

// Config keys beyond the credential keys of the auth package.
const (
	KeyHTTPTimeout = "http_timeout"
	KeyDebug       = "debug"
	KeyUserAgent   = "user_agent"
)

// New creates a client with static credentials taken from config.
func New(config *api.Config) (*api.Client, error) {
	normalized, err := normalize(config)
	if err != nil {
		return nil, err
	}

	if normalized.AccessToken.Unwrap() == "" {
		return nil, &api.ConfigurationError{Field: auth.KeyAccessToken, Err: api.ErrMissingToken}
	}

	source := auth.Static(normalized.APIEndpoint, normalized.AccessToken, normalized.Organization)

	return build(normalized, source), nil
}

// NewWithCredentials creates a client whose credentials come from source on
// every call. config supplies transport settings; its endpoint and token are
// ignored.
func NewWithCredentials(config *api.Config, source api.CredentialSource) *api.Client {
	if config == nil {
		config = &api.Config{}
	}

	return build(withDefaults(*config), source)
}

// Token, TokenRefresher and TokenManager expose the refreshable token source.
type (
	Token          = auth.Token
	TokenRefresher = auth.Refresher
	TokenManager   = auth.TokenManager
)

// NewWithRefresher creates a client whose token comes from refresh and is
// refreshed shortly before it expires. config supplies the endpoint,
// organization and transport settings; its access token is ignored. The manager is returned so callers can
// force a refresh or invalidate the token.
func NewWithRefresher(config *api.Config, refresh TokenRefresher) (*api.Client, *TokenManager, error) {
	normalized, err := normalize(config)
	if err != nil {
		return nil, nil, err
	}

	if refresh == nil {
		return nil, nil, &api.ConfigurationError{Field: "token_refresher", Err: auth.ErrNoTokenRefresher}
	}

	manager := auth.NewTokenManager(normalized.APIEndpoint, normalized.Organization, refresh)

	return build(normalized, manager), manager, nil
}

// NewFromViper creates a client configured by v. Credentials are re-read from
// v on every call.
func NewFromViper(v *viper.Viper) (*api.Client, error) {
	config, err := LoadConfig(v)
	if err != nil {
		return nil, err
	}

	return NewWithCredentials(config, auth.NewViperCredentials(v)), nil
}

func normalize(config *api.Config) (api.Config, error) {
	if config == nil {
		return api.Config{}, &api.ConfigurationError{Field: "config", Err: ErrConfigRequired}
	}

	if config.APIEndpoint == "" {
		return api.Config{}, &api.ConfigurationError{Field: auth.KeyAPIEndpoint, Err: api.ErrMissingBaseURL}
	}

	normalized := withDefaults(*config)
	normalized.APIEndpoint = NormalizeEndpoint(config.APIEndpoint)

	return normalized, nil
}

func withDefaults(config api.Config) api.Config {
	if config.Logger == nil {
		config.Logger = api.NopLogger{}
	}

	if config.UserAgent == "" {
		config.UserAgent = constants.DefaultUserAgent
	}

	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = constants.DefaultHTTPTimeout
	}

	return config
}

func build(config api.Config, source api.CredentialSource) *api.Client {
	transport := restkithttp.NewClient(
		restkithttp.WithLogger(config.Logger),
		restkithttp.WithDebug(config.Debug),
		restkithttp.WithUserAgent(config.UserAgent),
		restkithttp.WithTimeout(config.HTTPTimeout),
		restkithttp.WithInterceptors(config.Interceptors),
	)

	return api.NewClient(transport, source,
		api.WithLogger(config.Logger),
		api.WithUserAgent(config.UserAgent),
	)
}

// NormalizeEndpoint trims a trailing slash and defaults the scheme to https.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// WithRetryLogging returns a copy of policy that logs every retry at warn level.
func WithRetryLogging(policy *retry.Policy, logger api.Logger) *retry.Policy {
	if policy == nil {
		policy = retry.Default()
	}

	previous := policy.OnRetry

	return policy.WithOnRetry(func(a retry.Attempt, delay time.Duration) {
		logger.Warn("Retrying request", map[string]any{
			"attempt": a.Number,
			"delay":   delay.String(),
			"error":   fmt.Sprint(a.Err),
		})

		if previous != nil {
			previous(a, delay)
		}
	})
}

// LoadConfig reads client settings from v, including RESTKIT_* environment
// variables such as RESTKIT_API_ENDPOINT and RESTKIT_ACCESS_TOKEN.
func LoadConfig(v *viper.Viper) (*api.Config, error) {
	if v == nil {
		return nil, &api.ConfigurationError{Field: "viper", Err: ErrConfigRequired}
	}

	BindEnv(v)

	config := &api.Config{
		APIEndpoint:  v.GetString(auth.KeyAPIEndpoint),
		AccessToken:  sensitive.Wrap(v.GetString(auth.KeyAccessToken)),
		Organization: v.GetString(auth.KeyOrganization),
		HTTPTimeout:  v.GetDuration(KeyHTTPTimeout),
		Debug:        v.GetBool(KeyDebug),
		UserAgent:    v.GetString(KeyUserAgent),
	}

	if config.APIEndpoint != "" {
		config.APIEndpoint = NormalizeEndpoint(config.APIEndpoint)
	}

	return config, nil
}

// BindEnv makes v read RESTKIT_* environment variables and sets defaults.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyHTTPTimeout, constants.DefaultHTTPTimeout)
	v.SetDefault(KeyUserAgent, constants.DefaultUserAgent)
}

// ReadConfigFile loads a YAML, JSON or TOML config file into a new viper
// instance with environment overrides enabled.
func ReadConfigFile(path string) (*viper.Viper, error) {
	v := viper.New()
	BindEnv(v)
	v.SetConfigFile(path)

	err := v.ReadInConfig()
	if err != nil {
		return nil, &api.ConfigurationError{Field: "config_file", Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	return v, nil
}
