package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters.
//
// Parallelism is part of the Argon2id input: two devices only derive the
// same identity when they agree on it.
type Params struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultParams returns time 3, 64 MiB and parallelism 4. Parallelism is
// fixed rather than taken from the CPU count so the default derives the same
// keys on every machine.
func DefaultParams() Params {
	return Params{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
	}
}

// TestParams are cheap parameters for tests. Never use them for real keys.
var TestParams = Params{Time: 1, MemoryKiB: 1024, Parallelism: 1}

func (p Params) validate() error {
	if p.Time == 0 || p.MemoryKiB < 8*uint32(p.Parallelism) || p.Parallelism == 0 {
		return &KeyDerivationError{
			Stage: "params",
			Err:   fmt.Errorf("invalid argon2id params t=%d m=%d p=%d", p.Time, p.MemoryKiB, p.Parallelism),
		}
	}
	return nil
}

// Registration is the random material created once at registration.
// Master must be sealed to the deterministic X25519 key and then wiped.
type Registration struct {
	Master  []byte
	Runtime *RuntimeIdentity
}

// Wipe zeroes the master and the runtime private keys.
func (r *Registration) Wipe() {
	if r == nil {
		return
	}
	memguard.WipeBytes(r.Master)
	r.Runtime.Wipe()
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailSalt returns the first 16 bytes of SHA-256 over the normalized email.
func EmailSalt(email string) []byte {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	salt := make([]byte, SaltSize)
	copy(salt, sum[:SaltSize])
	return salt
}

// CheckPassword enforces the password policy. A missing password is a
// *KeyDerivationError; a short one is ErrWeakPassword.
func CheckPassword(password string) error {
	if password == "" {
		return &KeyDerivationError{Stage: "params", Err: ErrMissingPassword}
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// DeriveDeterministic derives the password identity for (email, password).
// The same inputs and params always yield the same keys.
func DeriveDeterministic(email, password string, params Params) (*Identity, error) {
	if err := CheckPassword(password); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	salt := EmailSalt(email)
	pw := []byte(password)
	master := argon2.IDKey(pw, salt, params.Time, params.MemoryKiB, params.Parallelism, KeySize)
	memguard.WipeBytes(pw)
	defer memguard.WipeBytes(master)

	ed, x, err := deriveKeypairs(master, LabelEdSeed, LabelXSeed)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Email: NormalizeEmail(email),
		Ed:    ed,
		X:     x,
		Salt:  salt,
	}, nil
}

// DeriveDeterministicContext runs DeriveDeterministic off the calling
// goroutine. When ctx ends first the computation is abandoned and ctx.Err()
// is returned; the abandoned result is wiped when it completes.
func DeriveDeterministicContext(ctx context.Context, email, password string, params Params) (*Identity, error) {
	type result struct {
		id  *Identity
		err error
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan result, 1)
	go func() {
		id, err := DeriveDeterministic(email, password, params)
		done <- result{id, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-done
			r.id.Wipe()
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.id, r.err
	}
}

// DeriveRegistrationRandom creates the random master and the runtime
// identity derived from it. The master is never derivable from the password.
func DeriveRegistrationRandom(params Params) (*Registration, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	ikm := make([]byte, KeySize)
	salt := make([]byte, SaltSize)
	if err := readRandom(ikm); err != nil {
		return nil, &KeyDerivationError{Stage: "random", Err: err}
	}
	if err := readRandom(salt); err != nil {
		return nil, &KeyDerivationError{Stage: "random", Err: err}
	}

	master := argon2.IDKey(ikm, salt, params.Time, params.MemoryKiB, params.Parallelism, KeySize)
	memguard.WipeBytes(ikm)

	runtimeID, err := DeriveRuntimeFromMaster(master)
	if err != nil {
		memguard.WipeBytes(master)
		return nil, err
	}

	return &Registration{Master: master, Runtime: runtimeID}, nil
}

// DeriveRegistrationRandomContext is DeriveRegistrationRandom with
// cancellation.
func DeriveRegistrationRandomContext(ctx context.Context, params Params) (*Registration, error) {
	type result struct {
		reg *Registration
		err error
	}
	done := make(chan result, 1)
	go func() {
		reg, err := DeriveRegistrationRandom(params)
		done <- result{reg, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-done
			r.reg.Wipe()
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.reg, r.err
	}
}

// DeriveRuntimeFromMaster derives the messaging keys from a random master.
// It applies the same labels DeriveRegistrationRandom uses, so an unsealed
// master reproduces the registration keys exactly.
func DeriveRuntimeFromMaster(master []byte) (*RuntimeIdentity, error) {
	if len(master) != KeySize {
		return nil, &KeyDerivationError{Stage: "hkdf", Err: fmt.Errorf("master is %d bytes, want %d", len(master), KeySize)}
	}
	ed, x, err := deriveKeypairs(master, LabelEdSeedRand, LabelXSeedRand)
	if err != nil {
		return nil, err
	}
	return &RuntimeIdentity{Ed: ed, X: x}, nil
}

func deriveKeypairs(master []byte, edLabel, xLabel string) (*EdKeypair, *XKeypair, error) {
	edSeed, err := derive32(master, edLabel)
	if err != nil {
		return nil, nil, &KeyDerivationError{Stage: "hkdf", Err: err}
	}
	defer memguard.WipeBytes(edSeed)

	xSeed, err := derive32(master, xLabel)
	if err != nil {
		return nil, nil, &KeyDerivationError{Stage: "hkdf", Err: err}
	}
	defer memguard.WipeBytes(xSeed)

	return newEdKeypair(edSeed), NewXKeypair(xSeed), nil
}

func randSource() io.Reader {
	if randReader != nil {
		return randReader
	}
	return rand.Reader
}

func readRandom(b []byte) error {
	if _, err := io.ReadFull(randSource(), b); err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	return nil
}
