package akismet

import (
	"fmt"
	"strings"
)

// TransportError is returned when a request to the service failed: network error, timeout,
// non-2xx status or unreadable body.
type TransportError struct {
	Op         string // operation, i.e. "comment-check"
	URL        string // endpoint url, api key replaced with "***"
	StatusCode int    // http status, 0 if no response received
	Err        error  // underlying error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("akismet %s request to %s failed with status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("akismet %s request to %s failed: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error, allows errors.Is(err, context.DeadlineExceeded).
func (e *TransportError) Unwrap() error { return e.Err }

// redactedError hides a secret in the message of the wrapped error
type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string { return redact(e.err.Error(), e.secret) }

func (e *redactedError) Unwrap() error { return e.err }

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
