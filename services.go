package main

import (
	"fmt"
	"net/smtp"
)

// Mailer sends account notifications. With no SMTP host configured it logs
// and drops the message, which is the expected mode for local runs.
type Mailer struct {
	cfg Config
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(to, subject, body string) error {
	if m.cfg.SMTPHost == "" {
		logger.Infow("smtp not configured, skipping email", "to", to, "subject", subject)
		return nil
	}

	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.SMTPFrom, to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	if err := smtp.SendMail(addr, auth, m.cfg.SMTPFrom, []string{to}, []byte(msg)); err != nil {
		logger.Errorw("failed to send email", "to", to, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Infow("email sent", "to", to)
	return nil
}
