package flight

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrCredentialMissing is returned by providers that need an API key when none is configured.
	ErrCredentialMissing = errors.New("credential not configured")

	// ErrRateLimited is returned when a provider's local request budget is spent.
	ErrRateLimited = errors.New("local request budget exhausted")

	// ErrNoProviders is returned by a chain with nothing to try.
	ErrNoProviders = errors.New("no providers configured")
)

// TransportError means no usable response arrived (dial failure, timeout, truncated body).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means the provider answered with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string

	// RetryAfter is parsed from the Retry-After header, zero when absent
	RetryAfter time.Duration

	// RateLimit carries the X-Rate-Limit-* headers when present
	RateLimit RateLimitHeaders
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: API returned status %d", e.Provider, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %v)", e.RetryAfter)
	}
	return msg
}

// IsRateLimit reports whether the provider rejected the request for rate limiting (HTTP 429).
func (e *StatusError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ParseError means the top-level payload was not in the expected shape.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse API response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RecordError describes a single record an adapter dropped. Adapters log it
// and carry on; it is never returned from Fetch.
type RecordError struct {
	Index  int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d skipped: %s", e.Index, e.Reason)
}

// Attempt is one provider's turn in a chain run.
type Attempt struct {
	Provider string
	Err      error
}

// ChainError is returned when every provider in a chain failed or was skipped.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes every attempt's cause to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

// newStatusError builds a StatusError from a response whose body has already been read.
func newStatusError(provider string, resp *http.Response, body []byte) *StatusError {
	return &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header),
		RateLimit:  extractRateLimitHeaders(resp.Header),
	}
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// extractRateLimitHeaders reads X-Rate-Limit-* (or X-RateLimit-*) headers.
// Missing counts are reported as -1.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := firstInt(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); ok {
		rlh.Limit = int(v)
	}
	if v, ok := firstInt(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); ok {
		rlh.Remaining = int(v)
	}
	// Reset is a Unix timestamp
	if v, ok := firstInt(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(v, 0)
	}

	return rlh
}

func firstInt(headers http.Header, names ...string) (int64, bool) {
	for _, name := range names {
		raw := headers.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
