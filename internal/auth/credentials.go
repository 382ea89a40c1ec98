// Package auth provides the credential sources consulted by api.Client before
// every call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/restkit/pkg/api"
	"github.com/fivetwenty-io/restkit/pkg/sensitive"
	"github.com/spf13/viper"
)

// Static errors for err113 compliance.
var (
	ErrNoTokenRefresher = errors.New("no token refresher configured")
	ErrInvalidToken     = errors.New("refreshed token is not valid")
)

// Config keys read by ViperCredentials.
const (
	KeyAPIEndpoint  = "api_endpoint"
	KeyAccessToken  = "access_token"
	KeyOrganization = "organization"
)

// Static returns a source that always yields the same credentials.
func Static(baseURL string, token sensitive.String, organization string) api.CredentialSource {
	creds := api.Credentials{Token: token, Organization: organization, BaseURL: baseURL}

	return api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
		return creds, nil
	})
}

// ViperCredentials reads credentials from a viper instance on every call, so
// changes picked up by viper (a reloaded config file, a new environment) take
// effect on the next request.
type ViperCredentials struct {
	v *viper.Viper
}

// NewViperCredentials creates a source over v.
func NewViperCredentials(v *viper.Viper) *ViperCredentials {
	return &ViperCredentials{v: v}
}

// Credentials implements api.CredentialSource. Missing values are left empty
// for the dispatcher to report.
func (c *ViperCredentials) Credentials(context.Context) (api.Credentials, error) {
	return api.Credentials{
		Token:        sensitive.Wrap(c.v.GetString(KeyAccessToken)),
		Organization: c.v.GetString(KeyOrganization),
		BaseURL:      c.v.GetString(KeyAPIEndpoint),
	}, nil
}

// Refresher obtains a fresh token, for example from an OAuth endpoint.
type Refresher func(ctx context.Context) (*Token, error)

// TokenManager is a credential source backed by a refreshable token.
type TokenManager struct {
	store        *TokenStore
	refresh      Refresher
	baseURL      string
	organization string
	mu           sync.Mutex
}

// NewTokenManager creates a manager that calls refresh whenever the stored
// token is missing or about to expire. refresh may be nil when tokens are
// only ever set with SetToken.
func NewTokenManager(baseURL, organization string, refresh Refresher) *TokenManager {
	return &TokenManager{
		store:        NewTokenStore(),
		refresh:      refresh,
		baseURL:      baseURL,
		organization: organization,
	}
}

// Credentials implements api.CredentialSource.
func (m *TokenManager) Credentials(ctx context.Context) (api.Credentials, error) {
	token, err := m.GetToken(ctx)
	if err != nil {
		return api.Credentials{}, err
	}

	return api.Credentials{Token: token.AccessToken, Organization: m.organization, BaseURL: m.baseURL}, nil
}

// GetToken returns a valid token, refreshing if necessary.
func (m *TokenManager) GetToken(ctx context.Context) (*Token, error) {
	if token := m.store.Get(); token.Valid() {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited.
	if token := m.store.Get(); token.Valid() {
		return token, nil
	}

	return m.refreshLocked(ctx)
}

// RefreshToken forces a token refresh.
func (m *TokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.refreshLocked(ctx)

	return err
}

func (m *TokenManager) refreshLocked(ctx context.Context) (*Token, error) {
	if m.refresh == nil {
		return nil, ErrNoTokenRefresher
	}

	token, err := m.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if !token.Valid() {
		return nil, ErrInvalidToken
	}

	m.store.Set(token)

	return token, nil
}

// Invalidate drops the stored token so the next call refreshes, for example
// after the server rejected it.
func (m *TokenManager) Invalidate() {
	m.store.Clear()
}

// SetToken manually sets the access token.
func (m *TokenManager) SetToken(token sensitive.String, expiresAt time.Time) {
	m.store.Set(&Token{AccessToken: token, ExpiresAt: expiresAt})
}

// IsTokenExpiringSoon returns true if the token expires within the given duration.
func (m *TokenManager) IsTokenExpiringSoon(within time.Duration) bool {
	token := m.store.Get()
	if token == nil {
		return true
	}

	if token.ExpiresAt.IsZero() {
		return false
	}

	return time.Now().Add(within).After(token.ExpiresAt)
}

// GetTokenExpiry returns the current token's expiration time.
func (m *TokenManager) GetTokenExpiry() time.Time {
	token := m.store.Get()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}
