package client

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenSession holds the bearer token of the signed-in user.
type TokenSession struct {
	mu    sync.RWMutex
	token string
	sub   string
}

// NewTokenSession starts a session for token. An empty token means signed out.
func NewTokenSession(token string) (*TokenSession, error) {
	s := &TokenSession{}
	if err := s.SignIn(token); err != nil {
		return nil, err
	}
	return s, nil
}

// SignIn replaces the session token. The subject is read without verifying
// the signature; the server does that.
func (s *TokenSession) SignIn(token string) error {
	sub := ""
	if token != "" {
		var err error
		if sub, err = subject(token); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.token, s.sub = token, sub
	s.mu.Unlock()
	return nil
}

func (s *TokenSession) SignOut() {
	s.mu.Lock()
	s.token, s.sub = "", ""
	s.mu.Unlock()
}

func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the token subject, or "" when signed out.
func (s *TokenSession) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub
}

func subject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// SignTestToken returns an HS256 token for userID, accepted by a server
// running with the same shared secret.
func SignTestToken(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret must be set")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
