package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"rental-marketplace-core/config"

	"github.com/rs/zerolog"
)

// SMTPTransport implements ports.MailTransport over plain SMTP.
type SMTPTransport struct {
	cfg config.SMTPConfig
	log zerolog.Logger
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPTransport creates a new SMTPTransport.
func NewSMTPTransport(cfg config.SMTPConfig, log zerolog.Logger) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, log: log, send: smtp.SendMail}
}

// Send delivers one email. The context deadline is advisory only: net/smtp
// has no context support, so an expired context fails fast before dialing.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sender := t.cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if t.cfg.Username != "" && t.cfg.Password != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := t.send(t.cfg.Addr(), auth, sender, []string{to}, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	t.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return fmt.Sprintf("accepted by %s", t.cfg.Addr()), nil
}
