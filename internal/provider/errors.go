package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

// TransportError reports a failed send. Permanent errors are never retried.
type TransportError struct {
	Transport  string
	StatusCode int
	Message    string
	Permanent  bool
	Cause      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if transport := strings.TrimSpace(e.Transport); transport != "" {
		parts = append(parts, transport+" transport error")
	} else {
		parts = append(parts, "transport error")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable reports whether a failed delivery attempt may succeed later.
// Payload shape errors never self-heal; environmental failures might.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrTemplateNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !transportErr.Permanent
	}

	return true
}
