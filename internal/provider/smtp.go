package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

const (
	// ApplicationHeader identifies mail sent by this service.
	ApplicationHeader      = "X-Application"
	ApplicationHeaderValue = "notification-dispatch"

	defaultSMTPTimeout = 30 * time.Second
)

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Secure      bool
	User        string
	Password    string
	FromName    string
	FromAddress string
}

var _ EmailTransport = (*SMTPTransport)(nil)

// SMTPTransport sends email through an authenticated relay.
type SMTPTransport struct {
	cfg     SMTPConfig
	signer  *DKIMSigner
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig, signer *DKIMSigner) (*SMTPTransport, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.FromAddress, err)
	}

	return &SMTPTransport{
		cfg:     cfg,
		signer:  signer,
		timeout: defaultSMTPTimeout,
		now:     time.Now,
	}, nil
}

// Verify checks that the relay accepts a connection and the configured credentials.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	client, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Quit(); err != nil {
		return t.wrap("quit", err)
	}
	return nil
}

func (t *SMTPTransport) Send(ctx context.Context, to string, content domain.EmailContent) error {
	recipient, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %v", domain.ErrInvalidPayload, to, err)
	}

	message, err := t.buildMessage(recipient, content)
	if err != nil {
		return err
	}
	if message, err = t.signer.Sign(message, t.cfg.FromAddress); err != nil {
		return &TransportError{Transport: domain.TypeEmail.String(), Message: "sign message", Permanent: true, Cause: err}
	}

	client, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(t.cfg.FromAddress); err != nil {
		return t.wrap("mail from", err)
	}
	if err := client.Rcpt(recipient.Address); err != nil {
		return t.wrap("rcpt to", err)
	}

	w, err := client.Data()
	if err != nil {
		return t.wrap("data start", err)
	}
	if _, err := w.Write(message); err != nil {
		_ = w.Close()
		return t.wrap("data write", err)
	}
	if err := w.Close(); err != nil {
		return t.wrap("data close", err)
	}

	if err := client.Quit(); err != nil {
		return t.wrap("quit", err)
	}
	return nil
}

func (t *SMTPTransport) open(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.Secure {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, t.wrap("dial", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = t.now().Add(t.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, t.wrap("set deadline", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, t.wrap("greeting", err)
	}

	if err := client.Hello(t.heloName()); err != nil {
		_ = client.Close()
		return nil, t.wrap("helo", err)
	}

	if !t.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig()); err != nil {
				_ = client.Close()
				return nil, t.wrap("starttls", err)
			}
		}
	}

	if t.cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			_ = client.Close()
			return nil, &TransportError{Transport: domain.TypeEmail.String(), Message: "relay does not support AUTH", Permanent: true}
		}
		if err := client.Auth(smtp.PlainAuth("", t.cfg.User, t.cfg.Password, t.cfg.Host)); err != nil {
			_ = client.Close()
			return nil, t.wrap("auth", err)
		}
	}

	return client, nil
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}

func (t *SMTPTransport) heloName() string {
	if d := domainOf(t.cfg.FromAddress); d != "" {
		return d
	}
	return "localhost"
}

func (t *SMTPTransport) buildMessage(to *mail.Address, content domain.EmailContent) ([]byte, error) {
	from := mail.Address{Name: t.cfg.FromName, Address: t.cfg.FromAddress}

	var buf bytes.Buffer
	writeHeader := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	mw := multipart.NewWriter(&buf)

	writeHeader("From", from.String())
	writeHeader("To", to.String())
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", content.Subject))
	writeHeader("Date", t.now().Format(time.RFC1123Z))
	writeHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), t.heloName()))
	writeHeader("MIME-Version", "1.0")
	writeHeader(ApplicationHeader, ApplicationHeaderValue)
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{contentType: "text/plain; charset=utf-8", body: content.Text},
		{contentType: "text/html; charset=utf-8", body: content.HTML},
	}
	for _, part := range parts {
		if part.body == "" {
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create mime part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("failed to encode mime part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mime message: %w", err)
	}

	return buf.Bytes(), nil
}

func (t *SMTPTransport) wrap(stage string, err error) error {
	var protoErr *textproto.Error
	permanent := errors.As(err, &protoErr) && protoErr.Code >= 500 && protoErr.Code < 600

	return &TransportError{
		Transport: domain.TypeEmail.String(),
		Message:   stage,
		Permanent: permanent || errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
