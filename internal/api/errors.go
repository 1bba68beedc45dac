package api

import (
	"errors"
	"fmt"
)

// Relay errors that can be checked with errors.Is.
var (
	// ErrUnauthorized indicates the session token was rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the token is valid but not for this resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrRecipientNotFound indicates the envelope's rcpt_id is unknown.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrAlreadyRegistered indicates the email is already registered.
	ErrAlreadyRegistered = errors.New("email is already registered")
	// ErrRateLimited indicates the relay rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ResourceType indicates which resource an error relates to.
type ResourceType string

const (
	ResourceUnknown      ResourceType = ""
	ResourceUser         ResourceType = "user"
	ResourceRecipient    ResourceType = "recipient"
	ResourceConversation ResourceType = "conversation"
)

// APIError represents an HTTP error from the relay.
type APIError struct {
	StatusCode   int
	Message      string
	RequestID    string
	ResourceType ResourceType
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

// SealdropError implements the SealdropError marker interface.
func (e *APIError) SealdropError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 403:
		return target == ErrForbidden
	case 404:
		if e.ResourceType == ResourceRecipient {
			return target == ErrRecipientNotFound || target == ErrNotFound
		}
		return target == ErrNotFound
	case 409:
		return target == ErrAlreadyRegistered
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// WithResourceType returns a copy of err with the resource type set. Errors
// that are not *APIError are returned unchanged.
func WithResourceType(err error, rt ResourceType) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cp := *apiErr
		cp.ResourceType = rt
		return &cp
	}
	return err
}

// NetworkError represents a transport-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SealdropError implements the SealdropError marker interface.
func (e *NetworkError) SealdropError() {}
