package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

var (
	errTokenExpired   = errors.New("token expired")
	errTokenNotYet    = errors.New("token not valid yet")
	errTokenIssuedAt  = errors.New("token used before issued")
	errTokenAudience  = errors.New("invalid audience")
	errTokenIssuer    = errors.New("invalid issuer")
	errTokenSubject   = errors.New("missing sub")
	errInvalidClaims  = errors.New("invalid claims")
	errSigningMethod  = errors.New("invalid signing method")
	errJWKSNotPresent = errors.New("jwks not configured")
)

// AuthOptions configures token validation.
type AuthOptions struct {
	Audience string
	Issuer   string
	// TestSecret switches validation to HS256 with a shared secret.
	TestSecret  string
	KeyCacheTTL time.Duration
}

// Auth validates bearer tokens and resolves the task owner from the sub claim.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keys        sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. jwks may be nil when opts.TestSecret
// is set.
func NewAuth(jwks *keyfunc.JWKS, opts AuthOptions) *Auth {
	a := &Auth{
		JWKS:        jwks,
		Audience:    opts.Audience,
		Issuer:      opts.Issuer,
		keyCacheTTL: opts.KeyCacheTTL,
	}
	if a.keyCacheTTL == 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	method := "RS256"
	if opts.TestSecret != "" {
		a.TestMode = true
		a.TestSecret = []byte(opts.TestSecret)
		method = "HS256"
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{method}))
	return a
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies a raw token and returns its subject.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}
	keyFunc := a.keyForToken
	if a.TestMode {
		keyFunc = a.sharedSecret
	}
	parsed, err := a.parser.Parse(string(token), keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidClaims
	}
	return a.subject(claims, time.Now())
}

// subject checks the time window, audience and issuer of claims and returns
// sub. Each time bound tolerates clockSkew in the token's favour.
func (a *Auth) subject(claims jwt.MapClaims, now time.Time) (string, error) {
	late, early := now.Add(-clockSkew).Unix(), now.Add(clockSkew).Unix()
	switch {
	case !claims.VerifyExpiresAt(late, true):
		return "", errTokenExpired
	case !claims.VerifyNotBefore(early, false):
		return "", errTokenNotYet
	case !claims.VerifyIssuedAt(early, false):
		return "", errTokenIssuedAt
	case a.Audience != "" && !claims.VerifyAudience(a.Audience, false):
		return "", errTokenAudience
	case a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false):
		return "", errTokenIssuer
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errTokenSubject
	}
	return sub, nil
}

func (a *Auth) sharedSecret(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errSigningMethod
	}
	return a.TestSecret, nil
}

// keyForToken resolves the RSA key for the token's kid, caching it for keyCacheTTL.
func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errJWKSNotPresent
	}
	kid, _ := token.Header["kid"].(string)
	cacheable := kid != "" && a.keyCacheTTL > 0
	if cacheable {
		if v, ok := a.keys.Load(kid); ok {
			if entry := v.(cachedKey); time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keys.Delete(kid)
		}
	}
	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if cacheable {
		a.keys.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
