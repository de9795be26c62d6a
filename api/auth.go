package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"governance-api/domain"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// Claim names carrying the actor's role and department. Auth0 rules usually
// namespace custom claims, so a claim whose name ends in "/role" is accepted
// as well.
const (
	claimRole       = "role"
	claimDepartment = "departmentId"
)

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// AuthOption customises an Auth.
type AuthOption func(*Auth)

// WithTestSecret verifies HS256 tokens signed with secret instead of using
// the JWKS.
func WithTestSecret(secret []byte) AuthOption {
	return func(a *Auth) {
		a.TestMode = true
		a.TestSecret = secret
	}
}

// WithKeyCacheTTL sets how long resolved JWKS keys are reused.
func WithKeyCacheTTL(ttl time.Duration) AuthOption {
	return func(a *Auth) {
		a.keyCacheTTL = ttl
	}
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, opts ...AuthOption) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer, keyCacheTTL: defaultJWKSCacheTTL}
	for _, opt := range opts {
		opt(a)
	}
	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// ActorFromAuthHeader builds the calling actor from the Authorization header.
func (a *Auth) ActorFromAuthHeader(h string) (domain.Actor, error) {
	if h == "" {
		return domain.Actor{}, errMissingAuthorization
	}
	token, err := bearerToken(h)
	if err != nil {
		return domain.Actor{}, err
	}
	return a.ActorFromBearer(token)
}

// ActorFromBearer verifies a raw bearer token and maps its claims to an
// actor. Tokens without a known role are rejected.
func (a *Auth) ActorFromBearer(token string) (domain.Actor, error) {
	claims, err := a.verify(token)
	if err != nil {
		return domain.Actor{}, err
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Actor{}, errors.New("missing sub")
	}
	role, err := domain.ParseRole(roleClaim(claims))
	if err != nil {
		return domain.Actor{}, err
	}
	dept, _ := claims[claimDepartment].(string)
	return domain.Actor{ID: sub, Role: role, DepartmentID: dept}, nil
}

func (a *Auth) verify(tokenStr string) (jwt.MapClaims, error) {
	if tokenStr == "" {
		return nil, errBadAuthorization
	}
	var parsedToken *jwt.Token
	var err error
	if a.TestMode {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return a.keyForToken(t)
		})
	}
	if err != nil {
		return nil, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return nil, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return nil, errors.New("invalid issuer")
	}
	return claims, nil
}

func roleClaim(claims jwt.MapClaims) string {
	if r, ok := claims[claimRole].(string); ok {
		return r
	}
	for k, v := range claims {
		if r, ok := v.(string); ok && strings.HasSuffix(k, "/"+claimRole) {
			return r
		}
	}
	return ""
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
