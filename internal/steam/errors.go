package steam

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityNotFound means no Steam account matched the supplied identifier.
	ErrIdentityNotFound = errors.New("steam identity not found")

	// ErrMissingCredential means an operation needed the Web API key and none was configured.
	ErrMissingCredential = errors.New("steam api key not configured")

	// ErrInvalidFormat means an identifier did not match the expected SteamID pattern.
	ErrInvalidFormat = errors.New("invalid steam id format")
)

// NetworkError wraps a transport-level failure (DNS, connection reset,
// timeout). It is never retried by the request client; retry policy for
// these belongs to the caller.
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s: %v", e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError means the client exhausted its internal 429 backoff
// budget for a path.
type RateLimitError struct {
	Path     string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s after %d attempts", e.Path, e.Attempts)
}

// UpstreamError is a non-2xx, non-429 HTTP status from Steam.
type UpstreamError struct {
	Path   string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Status, e.Path)
}

// MalformedResponseError means a 2xx response body did not contain the
// fields the caller requires.
type MalformedResponseError struct {
	Endpoint string
	Missing  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: missing %s", e.Endpoint, e.Missing)
}
