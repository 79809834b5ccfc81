package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"djtunez-api/domain"
)

const defaultKeyCacheTTL = 15 * time.Minute

// Local verifies JWTs without the hosted identity provider: either HS256
// against a shared secret (LOCAL_AUTH_MODE=hs256) or RS256 against a JWKS
// endpoint. Role grants and deletions are tracked in memory only, which is
// enough for development flows and tests; nothing survives a restart.
type Local struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration

	mu      sync.Mutex
	roles   map[string]domain.Role
	deleted map[string]bool
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewLocalHS256 builds a shared-secret verifier.
func NewLocalHS256(secret []byte, audience, issuer string) *Local {
	return &Local{
		audience:    audience,
		issuer:      issuer,
		testSecret:  secret,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		keyCacheTTL: defaultKeyCacheTTL,
		roles:       map[string]domain.Role{},
		deleted:     map[string]bool{},
	}
}

// NewLocalJWKS builds an RS256 verifier backed by a JWKS endpoint.
func NewLocalJWKS(jwks *keyfunc.JWKS, audience, issuer string) *Local {
	return &Local{
		jwks:        jwks,
		audience:    audience,
		issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: defaultKeyCacheTTL,
		roles:       map[string]domain.Role{},
		deleted:     map[string]bool{},
	}
}

// VerifySession validates the Authorization header and returns the session
// carried by the token, adjusted for any in-memory role grants.
func (l *Local) VerifySession(_ context.Context, authHeader string) (domain.Session, error) {
	token, err := bearerTokenFromHeader(authHeader)
	if err != nil {
		return domain.Session{}, err
	}

	var parsed *jwt.Token
	if l.testSecret != nil {
		parsed, err = l.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return l.testSecret, nil
		})
	} else {
		parsed, err = l.parser.Parse(token, func(t *jwt.Token) (any, error) {
			return l.keyForToken(t)
		})
	}
	if err != nil {
		return domain.Session{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Session{}, errors.New("invalid claims")
	}

	// One minute of clock skew, matching the hosted verifier's leniency.
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Session{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Session{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return domain.Session{}, errors.New("token used before issued")
	}
	if l.audience != "" && !claims.VerifyAudience(l.audience, false) {
		return domain.Session{}, errors.New("invalid audience")
	}
	if l.issuer != "" && !claims.VerifyIssuer(l.issuer, false) {
		return domain.Session{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Session{}, errors.New("missing sub")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleted[sub] {
		return domain.Session{}, errors.New("user deleted")
	}

	s := domain.Session{UID: sub, Role: domain.RoleFan}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		s.Name = name
	}
	if role, ok := claims["role"].(string); ok {
		s.Role = domain.ParseRole(role)
	}
	if granted, ok := l.roles[sub]; ok {
		s.Role = granted
	}
	return s, nil
}

// GrantDJRole records the role in memory so subsequent sessions for the same
// subject carry it even when the token itself does not.
func (l *Local) GrantDJRole(_ context.Context, uid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roles[uid] = domain.RoleDJ
	return nil
}

// DeleteUser marks the subject deleted; further sessions are rejected.
func (l *Local) DeleteUser(_ context.Context, uid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted[uid] = true
	delete(l.roles, uid)
	return nil
}

func (l *Local) keyForToken(token *jwt.Token) (any, error) {
	if l.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && l.keyCacheTTL > 0 {
		if cached, ok := l.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			l.keyCache.Delete(kid)
		}
	}

	key, err := l.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && l.keyCacheTTL > 0 {
		l.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(l.keyCacheTTL)})
	}
	return key, nil
}
