package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// SMTPTransport delivers messages over SMTP.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)}
}

func (s *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(buildGomail(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func buildGomail(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}
	return m
}
