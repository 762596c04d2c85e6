// Package email delivers transactional mail over SMTP with STARTTLS.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"utshob.org/internal/obs"
)

// Sender is what the domain services depend on. Delivery failures are logged
// by callers and never abort the triggering operation.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Mailer sends mail through a single SMTP relay.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	sender   string
}

func NewMailer(host string, port int, username, password, sender string) (*Mailer, error) {
	if strings.TrimSpace(host) == "" {
		return nil, errors.New("email: smtp host is required")
	}
	if strings.TrimSpace(sender) == "" {
		return nil, errors.New("email: sender address is required")
	}
	return &Mailer{host: host, port: port, username: username, password: password, sender: sender}, nil
}

// Send delivers one plain-text message. The context bounds the dial; SMTP
// itself has no cancellation points once the conversation starts.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("email: recipient is required")
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.sender); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	msg := buildMessage(m.sender, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}

// NopSender drops mail and logs the fact. Used when SMTP is not configured.
type NopSender struct{}

func (NopSender) Send(_ context.Context, to, subject, _ string) error {
	obs.LogRequest(map[string]any{
		"event":   "email.skipped",
		"to":      to,
		"subject": subject,
	})
	return nil
}
