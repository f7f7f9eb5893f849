package notify

import (
	"context"
	"fmt"
	"time"

	mail "github.com/go-mail/mail/v2"
)

// SMTPConfig carries the SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender delivers email over SMTP.
type SMTPSender struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTPSender constructs an SMTPSender from config.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	} else {
		d.Timeout = 10 * time.Second
	}
	return &SMTPSender{dialer: d, from: cfg.From}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
