package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewSMTPSenderValidation(t *testing.T) {
	if _, err := NewSMTPSender(Config{From: "noreply@films.example"}); err == nil {
		t.Fatal("missing host must be rejected")
	}
	if _, err := NewSMTPSender(Config{Host: "smtp.films.example"}); err == nil {
		t.Fatal("missing from address must be rejected")
	}
	sender, err := NewSMTPSender(Config{Host: "smtp.films.example", Port: 587, From: "noreply@films.example"})
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}
	if len(sender.templates) != len(templateSources) {
		t.Fatalf("expected %d templates, got %d", len(templateSources), len(sender.templates))
	}
}

func TestTemplatesRender(t *testing.T) {
	templates, err := parseTemplates()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	for _, name := range []string{TemplateVerifyEmail, TemplateResetPassword} {
		tmpl, ok := templates[name]
		if !ok {
			t.Fatalf("template %q missing", name)
		}
		if tmpl.subject == "" {
			t.Fatalf("template %q has no subject", name)
		}

		var body bytes.Buffer
		err := tmpl.body.Execute(&body, map[string]string{
			"link": "https://films.example/action?token=abc123",
		})
		if err != nil {
			t.Fatalf("render %q failed: %v", name, err)
		}
		if !strings.Contains(body.String(), `href="https://films.example/action?token=abc123"`) {
			t.Fatalf("template %q did not interpolate the link:\n%s", name, body.String())
		}
	}
}

func TestTemplatesEscapeData(t *testing.T) {
	templates, err := parseTemplates()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var body bytes.Buffer
	err = templates[TemplateVerifyEmail].body.Execute(&body, map[string]string{
		"link": `"><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(body.String(), "<script>") {
		t.Fatalf("data must be escaped:\n%s", body.String())
	}
}

func TestSendUnknownTemplate(t *testing.T) {
	sender, err := NewSMTPSender(Config{Host: "smtp.films.example", From: "noreply@films.example"})
	if err != nil {
		t.Fatalf("construction failed: %v", err)
	}
	err = sender.Send(context.Background(), Message{To: "vera@films.example", Template: "mystery"})
	if err == nil || !strings.Contains(err.Error(), "unknown template") {
		t.Fatalf("expected unknown template error, got %v", err)
	}
}
