package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
)

type fakeRelay struct {
	ln         net.Listener
	rejectRcpt bool

	mu       sync.Mutex
	commands []string
	data     []string
}

func startFakeRelay(t *testing.T, rejectRcpt bool) *fakeRelay {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	relay := &fakeRelay{ln: ln, rejectRcpt: rejectRcpt}
	go relay.serve()
	return relay
}

func (r *fakeRelay) port() int {
	return r.ln.Addr().(*net.TCPAddr).Port
}

func (r *fakeRelay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.session(conn)
	}
}

func (r *fakeRelay) session(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	reply := func(line string) {
		fmt.Fprint(bw, line+"\r\n")
		_ = bw.Flush()
	}

	reply("220 relay.test ESMTP")
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 relay.test")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			if r.rejectRcpt {
				reply("550 mailbox unavailable")
				continue
			}
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var lines []string
			for {
				dataLine, err := br.ReadString('\n')
				if err != nil {
					return
				}
				if dataLine == ".\r\n" {
					break
				}
				lines = append(lines, dataLine)
			}
			r.mu.Lock()
			r.data = append(r.data, strings.Join(lines, ""))
			r.mu.Unlock()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}

func (r *fakeRelay) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.data...)
}

func (r *fakeRelay) sawCommand(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func newTestSMTPTransport(t *testing.T, port int) *SMTPTransport {
	t.Helper()

	transport, err := NewSMTPTransport(SMTPConfig{
		Host:        "127.0.0.1",
		Port:        port,
		FromName:    "Dispatch",
		FromAddress: "noreply@example.com",
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTPTransport() error = %v", err)
	}
	transport.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return transport
}

func TestSMTPTransportSend(t *testing.T) {
	t.Parallel()

	relay := startFakeRelay(t, false)
	transport := newTestSMTPTransport(t, relay.port())

	err := transport.Send(context.Background(), "ada@example.com", domain.EmailContent{
		Subject: "Welcome, Ada!",
		Text:    "Hi Ada",
		HTML:    "<p>Hi Ada</p>",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !relay.sawCommand("MAIL FROM:<noreply@example.com>") {
		t.Fatal("expected MAIL FROM with sender address")
	}
	if !relay.sawCommand("RCPT TO:<ada@example.com>") {
		t.Fatal("expected RCPT TO with recipient address")
	}

	messages := relay.messages()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
	body := messages[0]
	for _, want := range []string{
		"Subject: Welcome, Ada!",
		"X-Application: notification-dispatch",
		`From: "Dispatch" <noreply@example.com>`,
		"multipart/alternative",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("message missing %q:\n%s", want, body)
		}
	}
}

func TestSMTPTransportSendRejectedRecipientIsPermanent(t *testing.T) {
	t.Parallel()

	relay := startFakeRelay(t, true)
	transport := newTestSMTPTransport(t, relay.port())

	err := transport.Send(context.Background(), "ghost@example.com", domain.EmailContent{Subject: "Hi", Text: "hello"})
	if err == nil {
		t.Fatal("expected error for rejected recipient")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if IsRetryable(err) {
		t.Fatalf("550 reply should not be retryable: %v", err)
	}
}

func TestSMTPTransportSendInvalidRecipient(t *testing.T) {
	t.Parallel()

	transport := newTestSMTPTransport(t, 2525)

	err := transport.Send(context.Background(), "not an address", domain.EmailContent{Subject: "Hi", Text: "hello"})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("Send() error = %v, want ErrInvalidPayload", err)
	}
}

func TestSMTPTransportVerify(t *testing.T) {
	t.Parallel()

	relay := startFakeRelay(t, false)
	transport := newTestSMTPTransport(t, relay.port())

	if err := transport.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !relay.sawCommand("QUIT") {
		t.Fatal("expected QUIT after verification")
	}
}

func TestSMTPTransportVerifyRequiresAuthSupport(t *testing.T) {
	t.Parallel()

	relay := startFakeRelay(t, false)
	transport := newTestSMTPTransport(t, relay.port())
	transport.cfg.User = "user"
	transport.cfg.Password = "secret"

	err := transport.Verify(context.Background())
	if err == nil {
		t.Fatal("expected error when relay does not advertise AUTH")
	}
	if IsRetryable(err) {
		t.Fatalf("missing AUTH support should be permanent: %v", err)
	}
}

func TestSMTPTransportDialErrorIsRetryable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	transport := newTestSMTPTransport(t, port)
	err = transport.Send(context.Background(), "ada@example.com", domain.EmailContent{Subject: "Hi", Text: "hello"})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !IsRetryable(err) {
		t.Fatalf("dial error should be retryable: %v", err)
	}
}

func TestNewSMTPTransportValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  SMTPConfig
	}{
		{name: "missing host", cfg: SMTPConfig{Port: 587, FromAddress: "noreply@example.com"}},
		{name: "invalid port", cfg: SMTPConfig{Host: "smtp.example.com", Port: 0, FromAddress: "noreply@example.com"}},
		{name: "invalid sender", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, FromAddress: "nope"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewSMTPTransport(tc.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
