// Package api is the HTTP client for the sealdrop relay. It handles request
// authentication, JSON serialization, rate limiting and retries with
// exponential backoff. It never sees plaintext: every payload it carries is
// either public key material or an envelope.
//
// # Authentication
//
// Authenticated calls take an [Authorizer]. A fresh token is minted for each
// attempt and sent as "Authorization: Bearer <token>" together with
// "X-User-Email". The push stream carries the same credentials in its query
// string ([Client.PushURL]).
//
// # Retry Behavior
//
// Requests are retried up to [DefaultMaxRetries] times on 408, 429, 500, 502,
// 503 and 504, and on transport failures. The delay starts at
// [DefaultRetryDelay] and doubles per attempt with 20% jitter.
//
// # Error Handling
//
// Relay failures are [*APIError] values matching the package sentinels:
//
//	if errors.Is(err, api.ErrRecipientNotFound) {
//	    // rcpt_id unknown to the relay
//	}
package api
