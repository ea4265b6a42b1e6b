// Package mail renders and delivers the transactional emails the engine
// enqueues: account verification, password reset, and any future templated
// message. Delivery is SMTP via gomail; rendering is html/template over a
// small built-in template set.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
)

// Message is one outbound mail, addressed and bound to a template.
type Message struct {
	To       string
	Template string
	Data     map[string]string
}

// Sender delivers rendered messages. Implementations return an error for
// anything retryable; the task worker owns the retry policy.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender renders templates and delivers over SMTP.
type SMTPSender struct {
	dialer    *gomail.Dialer
	from      string
	templates map[string]*mailTemplate
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

// NewSMTPSender constructs a sender with the built-in template set.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail: smtp host required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail: from address required")
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &SMTPSender{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:      cfg.From,
		templates: templates,
	}, nil
}

// Send renders the message template and delivers it. An unknown template
// name is a permanent error; delivery failures are transient and left to
// the caller's retry policy.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	tmpl, ok := s.templates[msg.Template]
	if !ok {
		return fmt.Errorf("mail: unknown template %q", msg.Template)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, msg.Data); err != nil {
		return fmt.Errorf("mail: render %q: %w", msg.Template, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", tmpl.subject)
	m.SetBody("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send %q to %s: %w", msg.Template, msg.To, err)
	}

	return nil
}
