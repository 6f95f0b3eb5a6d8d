package cdek

import (
	"context"
	"sync"
	"time"
)

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// Token is a bearer token issued by the OAuth endpoint. A Token is never
// modified after it is created; refreshes replace it as a whole.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Scope       string    `json:"scope,omitempty"`
	ID          string    `json:"jti,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be sent at now, keeping the
// given leeway before the expiry.
func (t *Token) ValidAt(now time.Time, leeway time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Add(leeway).Before(t.ExpiresAt)
}

// TokenStore persists the current token so it can be shared between
// processes holding the same credentials.
type TokenStore interface {
	// Load returns the stored token, or nil when there is none.
	Load(ctx context.Context) (*Token, error)
	// Save replaces the stored token.
	Save(ctx context.Context, tok *Token) error
	// Clear removes the stored token.
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu  sync.RWMutex
	tok *Token
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load returns the stored token.
func (s *MemoryTokenStore) Load(_ context.Context) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok, nil
}

// Save replaces the stored token.
func (s *MemoryTokenStore) Save(_ context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	return nil
}

// Clear removes the stored token.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}
