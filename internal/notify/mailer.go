package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/caplatform/backend/pkg/config"
)

// Mailer delivers a single message. Implementations must be safe for
// concurrent use by task runner workers.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// NewMailer selects a backend from configuration.
func NewMailer(cfg config.Email, log *zap.SugaredLogger) Mailer {
	if cfg.Backend == "smtp" {
		return &SMTPMailer{cfg: cfg}
	}
	return &LogMailer{log: log}
}

// SMTPMailer sends plain-text mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.Email
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, to, []byte(msg.String()))
}

// LogMailer writes messages to the log instead of delivering them. Default
// backend in development, mirroring a console email backend.
type LogMailer struct {
	log *zap.SugaredLogger
}

func (m *LogMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.log.Infow("email", "to", to, "subject", subject, "body", body)
	return nil
}
