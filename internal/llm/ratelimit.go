package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRetryAfter is the back-off hint used when the provider signals a
// rate limit without an explicit retry delay.
const DefaultRetryAfter = 60 * time.Second

// RateLimitError marks a transient provider rate limit. Callers back off
// for RetryAfter and retry the whole run rather than the failed call.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// rateLimitMarkers are the substrings that identify a rate-limit failure in
// provider error messages when no typed error is available.
var rateLimitMarkers = []string{
	"429",
	"RESOURCE_EXHAUSTED",
	"rate limit",
	"quota exceeded",
	"too many requests",
}

// normalizeError wraps provider errors, converting anything that looks like
// a rate limit into a RateLimitError so every backend surfaces the same
// failure shape.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return &RateLimitError{RetryAfter: DefaultRetryAfter, Err: err}
		}
	}
	return err
}

// AsRateLimit reports whether err represents a provider rate limit and, if
// so, returns the back-off hint. Substring markers are checked as well so
// errors that crossed a fmt.Errorf boundary still classify.
func AsRateLimit(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return DefaultRetryAfter, true
		}
	}
	return 0, false
}
