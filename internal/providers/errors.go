package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FailReason categorizes why a provider request failed, driving retry logic.
type FailReason string

const (
	// FailRateLimit indicates rate limiting (HTTP 429)
	FailRateLimit FailReason = "rate_limit"

	// FailAuth indicates authentication failure (HTTP 401, 403)
	FailAuth FailReason = "auth"

	// FailTimeout indicates request timeout or cancellation
	FailTimeout FailReason = "timeout"

	// FailServerError indicates server-side issues (HTTP 5xx)
	FailServerError FailReason = "server_error"

	// FailInvalidRequest indicates client-side issues (HTTP 400)
	FailInvalidRequest FailReason = "invalid_request"

	// FailNetwork indicates a transport-level failure before any response
	FailNetwork FailReason = "network"

	// FailUnknown indicates an unclassified error
	FailUnknown FailReason = "unknown"
)

// IsRetryable returns true if retrying the same request may succeed.
func (r FailReason) IsRetryable() bool {
	switch r {
	case FailRateLimit, FailServerError, FailNetwork:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from a model backend.
type ProviderError struct {
	Reason   FailReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// classify wraps an arbitrary transport error into a ProviderError.
func classify(provider, model string, status int, err error) *ProviderError {
	reason := FailUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		reason = FailTimeout
	case status == http.StatusTooManyRequests:
		reason = FailRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		reason = FailAuth
	case status >= 500:
		reason = FailServerError
	case status == http.StatusBadRequest:
		reason = FailInvalidRequest
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				reason = FailTimeout
			} else {
				reason = FailNetwork
			}
		} else if err != nil {
			reason = FailNetwork
		}
	}
	return &ProviderError{
		Reason:   reason,
		Provider: provider,
		Model:    model,
		Status:   status,
		Cause:    err,
	}
}
