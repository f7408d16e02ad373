package botapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// APIError is an unsuccessful Bot API response.
type APIError struct {
	// Method is the called API method.
	Method string
	// Code is the error_code field, or the HTTP status when absent.
	Code int
	// Description is the human readable reason.
	Description string
	// RetryAfter is set for rate-limited calls.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %s)", e.Method, e.Code, e.Description, e.RetryAfter)
	}

	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsTimeout reports whether err is an expected long-poll timeout rather than
// a real transport failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "client.timeout exceeded")
}

// retryAfter extracts the server-requested delay from err.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return 0, false
	}

	return apiErr.RetryAfter, true
}
