package sources

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoItems is returned when no extraction strategy matched the document.
var ErrNoItems = errors.New("no items matched")

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d body: %s", e.URL, e.StatusCode, e.Snippet)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	default:
		return true
	}
}

// ExtractError wraps a failed extraction for a source after retries.
type ExtractError struct {
	SourceID string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract source %s: %v", e.SourceID, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }
