package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"github.com/kursadbilgin/notification-dispatch/internal/provider"
)

// TemplateRenderer turns a template name and its data into email content.
type TemplateRenderer interface {
	Render(templateName string, data map[string]any) (domain.EmailContent, error)
}

// Dispatcher routes a payload to the transport for its type.
type Dispatcher struct {
	email    provider.EmailTransport
	sms      provider.Transport
	push     provider.Transport
	renderer TemplateRenderer
}

// NewDispatcher binds the transports. A nil sms or push transport is bound to an
// UnsupportedTransport, which fails every send permanently.
func NewDispatcher(
	email provider.EmailTransport,
	sms provider.Transport,
	push provider.Transport,
	renderer TemplateRenderer,
) (*Dispatcher, error) {
	if email == nil {
		return nil, fmt.Errorf("email transport is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("template renderer is required")
	}
	if sms == nil {
		sms = provider.UnsupportedTransport{Type: domain.TypeSMS}
	}
	if push == nil {
		push = provider.UnsupportedTransport{Type: domain.TypePush}
	}

	return &Dispatcher{
		email:    email,
		sms:      sms,
		push:     push,
		renderer: renderer,
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, p domain.Payload) error {
	switch p.Type {
	case domain.TypeEmail:
		content, err := d.emailContent(p)
		if err != nil {
			return err
		}
		return d.email.Send(ctx, p.Recipient, content)
	case domain.TypeSMS:
		content, err := d.plainContent(p)
		if err != nil {
			return err
		}
		return d.sms.Send(ctx, p.Recipient, content)
	case domain.TypePush:
		content, err := d.plainContent(p)
		if err != nil {
			return err
		}
		return d.push.Send(ctx, p.Recipient, content)
	default:
		return fmt.Errorf("%w: invalid type %q", domain.ErrInvalidPayload, p.Type)
	}
}

func (d *Dispatcher) emailContent(p domain.Payload) (domain.EmailContent, error) {
	if strings.TrimSpace(p.Template) != "" {
		return d.renderer.Render(p.Template, p.Data)
	}
	if p.EmailOptions != nil && !p.EmailOptions.IsEmpty() {
		return *p.EmailOptions, nil
	}
	return domain.EmailContent{}, fmt.Errorf("%w: email requires a template or emailOptions", domain.ErrInvalidPayload)
}

// plainContent uses the rendered text body of a template, else data.message.
func (d *Dispatcher) plainContent(p domain.Payload) (string, error) {
	if strings.TrimSpace(p.Template) != "" {
		rendered, err := d.renderer.Render(p.Template, p.Data)
		if err != nil {
			return "", err
		}
		return rendered.Text, nil
	}
	if msg := p.Message(); msg != "" {
		return msg, nil
	}
	return "", fmt.Errorf("%w: %s requires a template or data.%s", domain.ErrInvalidPayload, p.Type, domain.MessageDataKey)
}
