package auth

import (
	"sync"
	"time"

	"github.com/fivetwenty-io/restkit/pkg/sensitive"
)

// tokenExpiryBuffer treats tokens as expired slightly early so that a token
// never expires mid-request.
const tokenExpiryBuffer = 30 * time.Second

// Token is an access token and its expiry. A zero ExpiresAt never expires.
type Token struct {
	AccessToken sensitive.String
	ExpiresAt   time.Time
}

// Valid reports whether the token can be used for a request.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken.Unwrap() == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(tokenExpiryBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token. It is safe for concurrent use.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current token, or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

// Clear removes the current token.
func (s *TokenStore) Clear() {
	s.Set(nil)
}
