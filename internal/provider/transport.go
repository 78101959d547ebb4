package provider

import (
	"context"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

// Transport delivers plain content for a single notification type (SMS, push).
type Transport interface {
	Send(ctx context.Context, recipient string, content string) error
}

// EmailTransport delivers rendered email content through a mail relay.
type EmailTransport interface {
	Send(ctx context.Context, to string, content domain.EmailContent) error
	Verify(ctx context.Context) error
}

// UnsupportedTransport is bound to a seam that has no delivery backend configured.
type UnsupportedTransport struct {
	Type domain.Type
}

func (u UnsupportedTransport) Send(ctx context.Context, recipient string, content string) error {
	return &TransportError{
		Transport: u.Type.String(),
		Message:   "no transport configured",
		Permanent: true,
	}
}
