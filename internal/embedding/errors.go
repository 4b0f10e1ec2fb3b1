package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAPIKey     = errors.New("embedding provider API key not configured")
	ErrEmptyInput        = errors.New("embedding input is empty")
	ErrMalformedResponse = errors.New("malformed embedding response")
	ErrDimensionMismatch = errors.New("vector dimensions differ")
)

// ProviderError is a failed call to the embedding provider. StatusCode is
// zero for transport failures and malformed responses.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding provider call failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
