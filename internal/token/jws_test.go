package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	return pub, priv
}

func resolverFor(email string, pub ed25519.PublicKey) KeyResolver {
	return KeyResolverFunc(func(_ context.Context, e string) (ed25519.PublicKey, error) {
		if strings.EqualFold(e, email) {
			return pub, nil
		}
		return nil, errors.New("no such user")
	})
}

func TestSign_HeaderAndClaims(t *testing.T) {
	t.Parallel()
	_, priv := newKeys(t)
	s := NewSigner("alice@example.com", priv)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	raw, err := s.Sign(ActWSOpen, map[string]any{"rcpt_id": "r1", "sub": "mallory", "exp": 0}, 0)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims := jwt.MapClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Header["alg"] != "EdDSA" || tok.Header["kid"] != "alice@example.com" || tok.Header["typ"] != "JWT" {
		t.Errorf("header = %v", tok.Header)
	}
	if claims["sub"] != "alice@example.com" {
		t.Errorf("sub = %v, reserved claim overridden", claims["sub"])
	}
	if claims["act"] != ActWSOpen || claims["rcpt_id"] != "r1" {
		t.Errorf("claims = %v", claims)
	}
	if exp, _ := claims.GetExpirationTime(); exp == nil || !exp.Time.Equal(now.Add(DefaultTTL)) {
		t.Errorf("exp = %v, want iat+%s", exp, DefaultTTL)
	}
	if jti, _ := claims["jti"].(string); len(jti) != 36 {
		t.Errorf("jti = %q, want a uuid", jti)
	}
}

func TestSign_WipedKey(t *testing.T) {
	t.Parallel()
	s := NewSigner("alice@example.com", nil)
	if _, err := s.Sign(ActLogin, nil, 0); err == nil {
		t.Error("expected error without a key")
	}
}

func TestVerifier(t *testing.T) {
	t.Parallel()
	pub, priv := newKeys(t)
	_, otherPriv := newKeys(t)
	now := time.Unix(1_700_000_000, 0)

	sign := func(key ed25519.PrivateKey, email, act string, at time.Time, ttl time.Duration) string {
		s := NewSigner(email, key)
		s.now = func() time.Time { return at }
		raw, err := s.Sign(act, nil, ttl)
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	tests := []struct {
		name    string
		raw     string
		email   string
		acts    []string
		wantErr error
	}{
		{"valid", sign(priv, "alice@example.com", ActLogin, now, 0), "Alice@Example.com", []string{ActLogin}, nil},
		{"within leeway", sign(priv, "alice@example.com", ActLogin, now.Add(-5*time.Minute-30*time.Second), 0), "alice@example.com", nil, nil},
		{"expired", sign(priv, "alice@example.com", ActLogin, now.Add(-10*time.Minute), 0), "alice@example.com", nil, ErrTokenExpired},
		{"issued in the future", sign(priv, "alice@example.com", ActLogin, now.Add(5*time.Minute), 0), "alice@example.com", nil, ErrTokenInvalid},
		{"wrong key", sign(otherPriv, "alice@example.com", ActLogin, now, 0), "alice@example.com", nil, ErrTokenInvalid},
		{"email mismatch", sign(priv, "alice@example.com", ActLogin, now, 0), "bob@example.com", nil, ErrIdentityMismatch},
		{"unknown signer", sign(priv, "carol@example.com", ActLogin, now, 0), "carol@example.com", nil, ErrUnknownSigner},
		{"wrong action", sign(priv, "alice@example.com", ActInboxFetch, now, 0), "alice@example.com", []string{ActLogin}, ErrActionNotAllowed},
		{"garbage", "not.a.token", "alice@example.com", nil, ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(resolverFor("alice@example.com", pub))
			v.now = func() time.Time { return now }

			claims, err := v.Verify(context.Background(), tt.raw, tt.email, tt.acts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.Subject != "alice@example.com" {
				t.Errorf("Subject = %q", claims.Subject)
			}
		})
	}
}

func TestVerifier_SubjectMustMatchKid(t *testing.T) {
	t.Parallel()
	pub, priv := newKeys(t)
	now := time.Now()

	forge := func(sub string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
			"sub": sub,
			"act": ActLogin,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
			"jti": "jti-" + sub,
		})
		tok.Header["kid"] = "alice@example.com"
		raw, err := tok.SignedString(priv)
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	tests := []struct {
		name    string
		sub     string
		wantErr error
	}{
		{"matching subject", "alice@example.com", nil},
		{"subject differs in case", "ALICE@example.com", nil},
		{"other subject", "bob@example.com", ErrIdentityMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(resolverFor("alice@example.com", pub))
			_, err := v.Verify(context.Background(), forge(tt.sub), "alice@example.com")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifier_Replay(t *testing.T) {
	t.Parallel()
	pub, priv := newKeys(t)
	v := NewVerifier(resolverFor("alice@example.com", pub))

	raw, err := NewSigner("alice@example.com", priv).Sign(ActUsersList, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(context.Background(), raw, "alice@example.com"); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}
	if _, err := v.Verify(context.Background(), raw, "alice@example.com"); !errors.Is(err, ErrReplay) {
		t.Errorf("second Verify() error = %v, want ErrReplay", err)
	}
}
