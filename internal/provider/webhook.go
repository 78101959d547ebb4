package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

var _ Transport = (*WebhookTransport)(nil)

// WebhookTransport forwards SMS/push content to an HTTP gateway as JSON.
type WebhookTransport struct {
	client   *resty.Client
	endpoint string
	channel  domain.Type
}

func NewWebhookTransport(endpoint string, channel domain.Type) (*WebhookTransport, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookTransportWithClient(endpoint, channel, client)
}

func NewWebhookTransportWithClient(endpoint string, channel domain.Type, client *resty.Client) (*WebhookTransport, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid webhook channel %q", channel)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// The retry engine owns retries.
	client.SetRetryCount(0)

	return &WebhookTransport{
		client:   client,
		endpoint: trimmedEndpoint,
		channel:  channel,
	}, nil
}

func (p *WebhookTransport) Send(ctx context.Context, recipient string, content string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("webhook transport is not initialized")
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			To:      recipient,
			Channel: p.channel.String(),
			Content: content,
		}).
		Post(p.endpoint)
	if err != nil {
		return &TransportError{
			Transport: p.channel.String(),
			Message:   "webhook request failed",
			Permanent: errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &TransportError{
			Transport: p.channel.String(),
			Message:   "webhook returned empty response",
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &TransportError{
		Transport:  p.channel.String(),
		StatusCode: statusCode,
		Message:    webhookErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Permanent:  !isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
