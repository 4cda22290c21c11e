package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Retry constants shared by all providers.
const (
	defaultMaxAttempts  = 3
	defaultBackoffMulti = 2
	defaultMaxBackoff   = 10 * time.Second
)

// initialBackoff is a var so tests can shorten it.
var initialBackoff = 1 * time.Second

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry executes fn with exponential backoff on RetryableError.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err

		if attempt < defaultMaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
		}
	}

	return lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// isThrottle recognises throttling errors from SDKs that do not expose a status code.
func isThrottle(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "throttling") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "serviceunavailable")
}
