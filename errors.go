package sealdrop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/token"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrWeakPassword is returned when a password is shorter than 12
	// characters.
	ErrWeakPassword = crypto.ErrWeakPassword

	// ErrMissingPassword is wrapped in a *KeyDerivationError when the
	// password is empty.
	ErrMissingPassword = crypto.ErrMissingPassword

	// ErrKeyDerivation is matched by every *KeyDerivationError.
	ErrKeyDerivation = crypto.ErrKeyDerivation

	// ErrSealOpenFailure is the only signal of a wrong password. A corrupted
	// sealed master and an unknown account report the same error.
	ErrSealOpenFailure = errors.New("wrong password or corrupted account record")

	// ErrRecipientNotFound is returned when the recipient is not in the
	// directory or the relay does not know the recipient id.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrDecryptionFailed is returned when no hypothesis opens an envelope.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed

	// ErrSignatureInvalid is matched by *SignatureVerificationError.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrTokenExpired is returned when the relay rejects an expired token.
	ErrTokenExpired = token.ErrTokenExpired

	// ErrMalformedEnvelope is returned when an envelope or its payload is
	// structurally invalid.
	ErrMalformedEnvelope = crypto.ErrMalformedEnvelope

	// ErrUnauthorized is returned when the relay rejects the session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyRegistered is returned when the email is already registered.
	ErrAlreadyRegistered = errors.New("email is already registered")

	// ErrRateLimited is returned when the relay rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSessionClosed is returned when a session is used after Logout.
	ErrSessionClosed = errors.New("session has been closed")

	// ErrNotLoggedIn is returned when an operation needs a session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")
)

// SealdropError is implemented by all SDK errors.
type SealdropError interface {
	error
	SealdropError() // marker method
}

// APIError represents an HTTP error from the relay.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string // if returned by server

	recipient bool
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SealdropError implements the SealdropError interface.
func (e *APIError) SealdropError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		// The relay reports expiry only in the message text.
		if target == ErrTokenExpired {
			return strings.Contains(strings.ToLower(e.Message), "expired")
		}
		return target == ErrUnauthorized
	case 404:
		return e.recipient && target == ErrRecipientNotFound
	case 409:
		return target == ErrAlreadyRegistered
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SealdropError implements the SealdropError interface.
func (e *NetworkError) SealdropError() {}

// KeyDerivationError is a fatal failure in password hashing or key
// derivation. It is never retried.
type KeyDerivationError struct {
	Stage string // "params", "random", "argon2id", "hkdf", "runtime"
	Err   error
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("key derivation failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyDerivationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *KeyDerivationError) Is(target error) bool {
	return target == ErrKeyDerivation
}

// SealdropError implements the SealdropError interface.
func (e *KeyDerivationError) SealdropError() {}

// DecryptionError reports an envelope no hypothesis could open.
type DecryptionError struct {
	MsgID string
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed for message %s: %v", e.MsgID, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// SealdropError implements the SealdropError interface.
func (e *DecryptionError) SealdropError() {}

// EnvelopeError reports one envelope of a batch that could not be turned
// into a message. The rest of the batch is unaffected.
type EnvelopeError struct {
	EnvelopeID string
	MsgID      string
	Err        error
}

func (e *EnvelopeError) Error() string {
	if e.EnvelopeID != "" {
		return fmt.Sprintf("envelope %s: %v", e.EnvelopeID, e.Err)
	}
	if e.MsgID != "" {
		return fmt.Sprintf("envelope %s: %v", e.MsgID, e.Err)
	}
	return fmt.Sprintf("envelope: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// SealdropError implements the SealdropError interface.
func (e *EnvelopeError) SealdropError() {}

// SignatureVerificationError describes a message that decrypted but did not
// verify. The message is still delivered, flagged.
type SignatureVerificationError struct {
	MsgID   string
	Message string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Message)
}

// Is implements errors.Is for sentinel error matching.
func (e *SignatureVerificationError) Is(target error) bool {
	return target == ErrSignatureInvalid
}

// SealdropError implements the SealdropError interface.
func (e *SignatureVerificationError) SealdropError() {}

// wrapError converts internal errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
			recipient:  apiErr.ResourceType == api.ResourceRecipient,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	var kdfErr *crypto.KeyDerivationError
	if errors.As(err, &kdfErr) {
		return &KeyDerivationError{Stage: kdfErr.Stage, Err: kdfErr.Err}
	}

	if errors.Is(err, crypto.ErrSealOpen) {
		return ErrSealOpenFailure
	}

	return err
}
