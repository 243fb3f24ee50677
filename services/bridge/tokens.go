package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"moodle-bridge/lib/scrapers/moodle/core"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var SessionExpired = fmt.Errorf("your session has expired, please log in again")

// moodle keeps sessions alive for two hours of inactivity, holding a
// token past that point would just hand out dead cookies
const SessionTtl = time.Hour * 2

const tokenBytes = 32

// TokenStore maps opaque bearer tokens to exported moodle sessions.
// Entries expire after a fixed ttl regardless of use, resolving a token
// does not extend it.
type TokenStore struct {
	cache *expirable.LRU[string, core.Session]
}

func NewTokenStore(maxSessions int, ttl time.Duration) *TokenStore {
	return &TokenStore{
		cache: expirable.NewLRU[string, core.Session](maxSessions, nil, ttl),
	}
}

func (s *TokenStore) Issue(session core.Session) (string, error) {
	buf := make([]byte, tokenBytes)
	_, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	s.cache.Add(token, session)
	return token, nil
}

func (s *TokenStore) Resolve(token string) (core.Session, error) {
	session, ok := s.cache.Get(token)
	if !ok {
		return core.Session{}, SessionExpired
	}
	return session, nil
}
