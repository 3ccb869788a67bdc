package errors

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned whenever a connector call hits a 429,
// a GraphQL-level rate-limit marker, or a transient timeout/5xx the
// client has chosen to treat as retryable. RetryAfter is zero when the
// server gave no explicit hint, letting the retry engine fall back to
// exponential backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Endpoint, e.RetryAfter)
}

// AuthFailedError corresponds to a 401/403 from the vendor, or a
// terminal failure exchanging a refresh token.
type AuthFailedError struct {
	StatusCode int
	Message    string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("auth failed (status %d): %s", e.StatusCode, e.Message)
}

// NotFoundError corresponds to a 404 on a resource lookup. Per-record
// fetches (FetchEntity) return it as well; no connector returns a nil
// record in its place.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// APIError covers any other non-retryable client error.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Body)
}

// ExtendVisibilityError is control-flow-shaped, not a failure: it tells
// the worker harness to extend the queue message's visibility timeout
// and return, rather than sleeping in-process. Raised by the retry
// engine when the computed backoff exceeds the extend-visibility
// threshold (30s).
type ExtendVisibilityError struct {
	Seconds int
}

func (e *ExtendVisibilityError) Error() string {
	return fmt.Sprintf("extend visibility by %ds", e.Seconds)
}

// AsRateLimited unwraps err into a *RateLimitedError, if present.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// AsAuthFailed unwraps err into a *AuthFailedError, if present.
func AsAuthFailed(err error) (*AuthFailedError, bool) {
	var af *AuthFailedError
	if errors.As(err, &af) {
		return af, true
	}
	return nil, false
}

// AsNotFound unwraps err into a *NotFoundError, if present.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

// AsExtendVisibility unwraps err into a *ExtendVisibilityError, if present.
func AsExtendVisibility(err error) (*ExtendVisibilityError, bool) {
	var ev *ExtendVisibilityError
	if errors.As(err, &ev) {
		return ev, true
	}
	return nil, false
}

// IsRetryable reports whether err is one the retry engine should act on;
// only rate-limited errors qualify.
func IsRetryable(err error) bool {
	if _, ok := AsRateLimited(err); ok {
		return true
	}
	return false
}
