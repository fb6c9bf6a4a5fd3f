package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers email over plain SMTP. Used by the worker; the API
// process never talks to the mail server directly.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send implements common.EmailSender.
func (s SMTPSender) Send(to, subject, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("notify: recipient is empty")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
