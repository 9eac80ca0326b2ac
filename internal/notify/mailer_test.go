package notify

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serversoft/serversoft/internal/config"
)

// fakeSMTP is a minimal plaintext SMTP server recording one transaction.
type fakeSMTP struct {
	mu       sync.Mutex
	from     string
	rcpt     []string
	data     string
	listener net.Listener
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &fakeSMTP{listener: ln}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-localhost")
			reply("250 HELP")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(strings.TrimSpace(line)[len("MAIL FROM:"):], "<>")
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.Trim(strings.TrimSpace(line)[len("RCPT TO:"):], "<>"))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *fakeSMTP) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func TestNewMailer_Disabled(t *testing.T) {
	tests := []config.NotificationsConfig{
		{Enabled: false, SMTP: config.SMTPConfig{Host: "smtp.example.com", From: "a@example.com"}},
		{Enabled: true},
	}
	for i, cfg := range tests {
		if _, err := NewMailer(cfg); !errors.Is(err, ErrDisabled) {
			t.Errorf("case %d: err = %v, want ErrDisabled", i, err)
		}
	}
	if _, err := NewMailer(config.NotificationsConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "smtp.example.com"}}); err == nil {
		t.Error("expected error for missing from address")
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	m, err := NewMailer(config.NotificationsConfig{
		Enabled: true,
		SMTP:    config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@serversoft.test"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Send(ctx, "ops@example.com", "Hello", "line one\nline two"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.from != "noreply@serversoft.test" {
		t.Errorf("MAIL FROM = %q", srv.from)
	}
	if len(srv.rcpt) != 1 || srv.rcpt[0] != "ops@example.com" {
		t.Errorf("RCPT TO = %v", srv.rcpt)
	}
	if !strings.Contains(srv.data, "Subject: Hello\r\n") || !strings.Contains(srv.data, "line one\r\nline two") {
		t.Errorf("unexpected message:\n%s", srv.data)
	}
}

func TestSMTPMailer_StartTLSRequired(t *testing.T) {
	srv := startFakeSMTP(t)
	m, _ := NewMailer(config.NotificationsConfig{
		Enabled: true,
		SMTP:    config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "a@b.test", UseTLS: true},
	})
	err := m.Send(context.Background(), "ops@example.com", "s", "b")
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Errorf("err = %v, want STARTTLS error", err)
	}
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m, _ := NewMailer(config.NotificationsConfig{
		Enabled: true,
		SMTP:    config.SMTPConfig{Host: "127.0.0.1", Port: port, From: "a@b.test"},
	})
	if err := m.Send(context.Background(), "x@y.test", "s", "b"); err == nil {
		t.Error("expected dial error for " + strconv.Itoa(port))
	}
}

func TestBuildMessage_StripsHeaderInjection(t *testing.T) {
	msg := string(buildMessage("a@b.test", "victim@example.com\r\nBcc: evil@example.com", "hi", "body", time.Unix(0, 0)))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Errorf("header injection not stripped:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody\r\n") {
		t.Errorf("unexpected body framing: %q", msg)
	}
}

func TestTemplates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	subject, body := APIKeyExpiryMessage("Dana", "ci", "ss_ab12", now.Add(72*time.Hour), now)
	if !strings.Contains(subject, "expires in 4 day(s)") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Hello Dana,") || !strings.Contains(body, "ss_ab12...") {
		t.Errorf("body = %q", body)
	}

	_, body = PasswordResetMessage("", "https://app.example.com/reset?token=abc", time.Hour)
	if !strings.Contains(body, "Hello there,") || !strings.Contains(body, "within 1 hour") || !strings.Contains(body, "token=abc") {
		t.Errorf("body = %q", body)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		time.Hour:        "1 hour",
		3 * time.Hour:    "3 hours",
		30 * time.Minute: "30 minutes",
		time.Minute:      "1 minute",
	}
	for d, want := range tests {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
