package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// AccessDeniedError marks a 403/429-shaped refusal of the main document.
// The crawler escalates to the remote browser on it instead of burning a
// retry.
type AccessDeniedError struct {
	URL    string
	Status int
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: status=%d url=%s", e.Status, e.URL)
}

// ExtractionError marks a loaded page whose expected product markup is
// absent. Retried like any session failure.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s url=%s", e.Reason, e.URL)
}

// IsAccessDenied classifies an attempt failure as escalation-worthy. Besides
// the typed error it sniffs the message for 403/429, since navigation errors
// from the browser layer sometimes carry the status only as text.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "403") || strings.Contains(msg, "429")
}
