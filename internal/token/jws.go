// Package token issues and verifies the short-lived EdDSA session tokens that
// authenticate relay requests.
package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Relay actions carried in the "act" claim.
const (
	ActLogin             = "login"
	ActUsersList         = "users.list"
	ActMessagesSend      = "messages.send"
	ActInboxFetch        = "inbox.fetch"
	ActConversationFetch = "conversation.fetch"
	ActWSOpen            = "ws.open"
)

const (
	// DefaultTTL is the token lifetime when Sign is given a zero ttl.
	DefaultTTL = 300 * time.Second
	// DefaultLeeway is the clock skew tolerated by Verifier.
	DefaultLeeway = 60 * time.Second
	// ReplayWindow is the minimum time a jti is remembered.
	ReplayWindow = 10 * time.Minute
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrReplay           = errors.New("token replayed")
	ErrUnknownSigner    = errors.New("unknown token signer")
	ErrIdentityMismatch = errors.New("token identity does not match request")
	ErrActionNotAllowed = errors.New("token action not allowed")
)

var reserved = map[string]bool{"sub": true, "act": true, "iat": true, "exp": true, "jti": true}

// Signer mints tokens with a deterministic Ed25519 key.
type Signer struct {
	email string
	key   ed25519.PrivateKey
	now   func() time.Time
}

// NewSigner returns a Signer for email. The key slice is retained, so wiping
// it disables the signer.
func NewSigner(email string, key ed25519.PrivateKey) *Signer {
	return &Signer{email: email, key: key, now: time.Now}
}

// Sign returns a compact JWS for action. Claims in extra are added to the
// payload; reserved claims in extra are ignored.
func (s *Signer) Sign(action string, extra map[string]any, ttl time.Duration) (string, error) {
	if len(s.key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("sign %s: signing key unavailable", action)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		if !reserved[k] {
			claims[k] = v
		}
	}
	claims["sub"] = s.email
	claims["act"] = action
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	claims["jti"] = uuid.NewString()

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = s.email

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", action, err)
	}
	return signed, nil
}

// KeyResolver maps a user email to its deterministic Ed25519 public key.
type KeyResolver interface {
	SigningKey(ctx context.Context, email string) (ed25519.PublicKey, error)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(ctx context.Context, email string) (ed25519.PublicKey, error)

func (f KeyResolverFunc) SigningKey(ctx context.Context, email string) (ed25519.PublicKey, error) {
	return f(ctx, email)
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject   string
	Action    string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Verifier checks tokens the way the relay does: EdDSA only, kid bound to the
// request email, exp required, bounded skew and single use per jti.
type Verifier struct {
	resolver KeyResolver
	leeway   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewVerifier returns a Verifier resolving signer keys through r.
func NewVerifier(r KeyResolver) *Verifier {
	return &Verifier{
		resolver: r,
		leeway:   DefaultLeeway,
		now:      time.Now,
		seen:     make(map[string]time.Time),
	}
}

// Verify validates raw for a request made by email. When actions is non-empty
// the act claim must be one of them.
func (v *Verifier) Verify(ctx context.Context, raw, email string, actions ...string) (*Claims, error) {
	var signer string
	parsed := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, parsed, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			kid, _ = parsed["sub"].(string)
		}
		kid = strings.TrimSpace(kid)
		if kid == "" || !strings.EqualFold(kid, strings.TrimSpace(email)) {
			return nil, ErrIdentityMismatch
		}
		signer = kid
		pub, err := v.resolver.SigningKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownSigner, err)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, ErrIdentityMismatch):
		return nil, ErrIdentityMismatch
	case errors.Is(err, ErrUnknownSigner):
		return nil, ErrUnknownSigner
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims := claimsFrom(parsed)
	if claims.Subject == "" {
		claims.Subject = signer
	}
	if !strings.EqualFold(strings.TrimSpace(claims.Subject), signer) {
		return nil, ErrIdentityMismatch
	}
	if len(actions) > 0 && !slices.Contains(actions, claims.Action) {
		return nil, fmt.Errorf("%w: %q", ErrActionNotAllowed, claims.Action)
	}
	if err := v.checkReplay(claims.ID, claims.ExpiresAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) checkReplay(jti string, exp time.Time) error {
	if jti == "" {
		return fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	for k, until := range v.seen {
		if until.Before(now) {
			delete(v.seen, k)
		}
	}
	if _, ok := v.seen[jti]; ok {
		return ErrReplay
	}
	until := now.Add(ReplayWindow)
	if exp.After(until) {
		until = exp
	}
	v.seen[jti] = until
	return nil
}

func claimsFrom(m jwt.MapClaims) *Claims {
	c := &Claims{Extra: map[string]any{}}
	c.Subject, _ = m["sub"].(string)
	c.Action, _ = m["act"].(string)
	c.ID, _ = m["jti"].(string)
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	for k, val := range m {
		if !reserved[k] {
			c.Extra[k] = val
		}
	}
	return c
}
