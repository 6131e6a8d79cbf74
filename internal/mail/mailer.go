// Package mail dispatches outbound notifications. The department's mail
// relay is plain SMTP; no richer provider API is involved, so the
// implementation stays on net/smtp behind the auth.Notifier contract.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"wrdms.org/internal/obs"
)

// ResetLink builds the frontend URL a reset token is embedded into.
func ResetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// SMTPMailer sends password reset mail through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	baseURL  string
}

// NewSMTPMailer constructs a mailer. Host and from address are required.
func NewSMTPMailer(host string, port int, username, password, from, baseURL string) (*SMTPMailer, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("mail: smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		baseURL:  baseURL,
	}, nil
}

// SendPasswordReset delivers the reset link. A failure here must surface to
// the caller: the operation as a whole fails when the user cannot receive
// the token.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link := ResetLink(m.baseURL, token)
	msg := buildResetMessage(m.from, to, link, expiresAt)

	addr := net.JoinHostPort(m.host, fmt.Sprintf("%d", m.port))
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: send reset to %s: %w", to, err)
	}
	return nil
}

func buildResetMessage(from, to, link string, expiresAt time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Password reset request\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString("A password reset was requested for your account.\r\n\r\n")
	fmt.Fprintf(&b, "Reset your password: %s\r\n\r\n", link)
	fmt.Fprintf(&b, "The link expires at %s.\r\n", expiresAt.UTC().Format(time.RFC1123))
	b.WriteString("If you did not request this, ignore this message.\r\n")
	return []byte(b.String())
}

// LogMailer writes the reset link to the service log instead of sending
// mail. Development only: never wire it in production.
type LogMailer struct {
	baseURL string
}

// NewLogMailer constructs the development mailer.
func NewLogMailer(baseURL string) *LogMailer {
	return &LogMailer{baseURL: baseURL}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	obs.Log(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"type":       "mail",
		"event":      "password_reset_link",
		"to":         to,
		"reset_link": ResetLink(m.baseURL, token),
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	return nil
}
