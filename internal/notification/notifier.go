package notification

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"fmt"
	"net/smtp"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg        config.SMTPConfig
	auth       smtp.Auth
	recipients []string
	sendMail   sendMailFunc
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) model.Notifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth, recipients: recipients(cfg.To), sendMail: smtp.SendMail}
}

// Send mails a plain text message to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	if len(n.recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.sendMail(addr, n.auth, n.cfg.From, n.recipients, n.message(subject, body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) message(subject, body string) []byte {
	var b strings.Builder
	b.WriteString("To: " + strings.Join(n.recipients, ", ") + "\r\n")
	b.WriteString("From: " + n.cfg.From + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func recipients(to string) []string {
	var out []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
