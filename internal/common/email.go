package common

import "sync"

// EmailSender defines the contract for sending emails.
type EmailSender interface {
	Send(to, subject, html string) error
}

// InMemoryEmail provides a test-friendly email sender that records messages.
// Safe for concurrent use so worker tests can poll the outbox.
type InMemoryEmail struct {
	mu     sync.Mutex
	outbox []Email
}

// Email represents a single email message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// Outbox returns a copy of the captured messages.
func (m *InMemoryEmail) Outbox() []Email {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
