package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

// SMTPConfig carries the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

var errUnknownTemplate = errors.New("jobs: unknown email template")

func isTemplateErr(err error) bool {
	return errors.Is(err, errUnknownTemplate)
}

// emailTemplates maps workflow template names to subject and body.
// Bodies are plain text; variables come from the task payload.
var emailTemplates = map[string]struct {
	subject string
	body    string
}{
	"report_submitted": {
		subject: "Report submitted for {{.period}}",
		body: "Hello {{.name}},\n\n" +
			"A monthly report for period {{.period}} has been submitted and is awaiting your review.\n" +
			"Revenue: {{.revenue}}\n\n" +
			"Review it here: {{.link}}\n",
	},
	"report_approved": {
		subject: "Report approved for {{.period}}",
		body: "Hello {{.name}},\n\n" +
			"Your report for period {{.period}} has been approved.\n\n" +
			"View it here: {{.link}}\n",
	},
	"report_rejected": {
		subject: "Report rejected for {{.period}}",
		body: "Hello {{.name}},\n\n" +
			"Your report for period {{.period}} was rejected.\n" +
			"Reason: {{.reason}}\n\n" +
			"Revise and resubmit here: {{.link}}\n",
	},
}

// Mailer renders workflow templates and delivers them over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer constructs a Mailer for the given relay.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Send renders the payload's template and delivers the message.
func (m *Mailer) Send(ctx context.Context, payload SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := m.render(payload)
	if err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", payload.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return m.send(addr, auth, m.cfg.From, []string{payload.To}, msg.Bytes())
}

func (m *Mailer) render(payload SendEmailPayload) (subject, body string, err error) {
	tpl, ok := emailTemplates[payload.Template]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", errUnknownTemplate, payload.Template)
	}
	vars := make(map[string]string, len(payload.Variables)+1)
	for k, v := range payload.Variables {
		vars[k] = v
	}
	if _, ok := vars["name"]; !ok {
		vars["name"] = payload.Name
	}
	subject, err = renderTemplate(payload.Template+":subject", tpl.subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err = renderTemplate(payload.Template+":body", tpl.body, vars)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), body, nil
}

func renderTemplate(name, text string, vars map[string]string) (string, error) {
	tpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tpl.Execute(&out, vars); err != nil {
		return "", err
	}
	return out.String(), nil
}
