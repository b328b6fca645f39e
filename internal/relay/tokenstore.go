package relay

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultTokenTTL  = 10 * time.Minute
	tokenSweepPeriod = time.Minute
)

// RequestToken is the continuation record held server-side for OAuth 1.0a
// providers, whose protocol leaves no room for an embedded state parameter.
type RequestToken struct {
	Secret   string
	Redirect string
	Nonce    string
}

// TokenStore is a bounded TTL map from request token to continuation record.
// Entries expire independently of any request and must be deleted explicitly
// after the first successful token exchange so a replay fails.
type TokenStore struct {
	cache *gocache.Cache
}

// NewTokenStore builds a store with the given entry TTL. A non-positive TTL
// falls back to ten minutes.
func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenStore{cache: gocache.New(ttl, tokenSweepPeriod)}
}

// Put records the continuation for a freshly issued request token.
func (s *TokenStore) Put(token string, entry RequestToken) {
	if token == "" {
		return
	}
	s.cache.SetDefault(token, entry)
}

// Get returns the continuation for a request token without consuming it.
func (s *TokenStore) Get(token string) (RequestToken, bool) {
	v, ok := s.cache.Get(token)
	if !ok {
		return RequestToken{}, false
	}
	entry, ok := v.(RequestToken)
	return entry, ok
}

// Delete removes a consumed request token. Called after a successful access
// token exchange to guarantee single use.
func (s *TokenStore) Delete(token string) {
	s.cache.Delete(token)
}
