package auth

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
)

// TokenStore keeps the bearer credential of the signed-in user in memory.
// It implements oauth2.TokenSource so the API client can attach it as an
// Authorization header.
type TokenStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
	now   func() time.Time
}

// NewTokenStore creates a store, optionally seeded with a raw access token.
func NewTokenStore(access string) *TokenStore {
	s := &TokenStore{now: time.Now}
	if access != "" {
		s.Set(access, 0)
	}
	return s
}

// Set replaces the stored token. A zero ttl means the token does not expire
// on the client side.
func (s *TokenStore) Set(access string, ttl time.Duration) {
	tok := &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
	}
	if ttl > 0 {
		tok.Expiry = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

// Get returns the raw access token when one is stored and still valid.
func (s *TokenStore) Get() (string, bool) {
	tok, err := s.Token()
	if err != nil {
		return "", false
	}
	return tok.AccessToken, true
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// Token implements oauth2.TokenSource.
func (s *TokenStore) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if tok == nil || tok.AccessToken == "" {
		return nil, ErrTokenNotFound
	}
	if !tok.Expiry.IsZero() && !s.now().Before(tok.Expiry) {
		s.Clear()
		return nil, ErrTokenExpired
	}

	copied := *tok
	return &copied, nil
}
