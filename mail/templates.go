package mail

import "html/template"

// Template names match what the engine enqueues.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

var templateSources = map[string]struct {
	subject string
	body    string
}{
	TemplateVerifyEmail: {
		subject: "Confirm your email address",
		body: `
		<h2>Welcome!</h2>
		<p>Please confirm your email address to activate your account.</p>
		<p><a href="{{.link}}">Confirm email address</a></p>
		<p>If you did not create this account, you can ignore this email.</p>`,
	},
	TemplateResetPassword: {
		subject: "Password reset request",
		body: `
		<h3>Password reset requested</h3>
		<p>We received a request to reset the password for your account.</p>
		<p><a href="{{.link}}">Choose a new password</a></p>
		<p>The link expires soon. If you did not request this change, you can ignore this email.</p>`,
	},
}

func parseTemplates() (map[string]*mailTemplate, error) {
	out := make(map[string]*mailTemplate, len(templateSources))
	for name, src := range templateSources {
		parsed, err := template.New(name).Parse(src.body)
		if err != nil {
			return nil, err
		}
		out[name] = &mailTemplate{subject: src.subject, body: parsed}
	}
	return out, nil
}
