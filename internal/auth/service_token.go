// ABOUTME: Short-lived HS256 service tokens for authenticating upstream calls
// ABOUTME: Minted from a shared secret and cached until close to expiry

package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret is returned when a token source is built without a secret.
var ErrEmptySecret = errors.New("service token secret must not be empty")

// renewMargin is how long before expiry a cached token is considered stale.
const renewMargin = 30 * time.Second

// ServiceTokenSource mints HS256 bearer tokens identifying this gateway to
// upstream services. Tokens are cached and reused until close to expiry.
type ServiceTokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewServiceTokenSource creates a token source for the given subject.
func NewServiceTokenSource(secret, subject string, ttl time.Duration) (*ServiceTokenSource, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ServiceTokenSource{
		secret:  []byte(secret),
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Token returns a valid bearer token, minting a fresh one if the cached
// token is missing or within the renewal margin of expiry.
func (s *ServiceTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Before(s.expiresAt.Add(-renewMargin)) {
		return s.cached, nil
	}

	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": s.subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.cached = signed
	s.expiresAt = expiresAt
	return signed, nil
}
