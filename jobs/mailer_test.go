package jobs

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestMailerRendersAndSends(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewMailer(SMTPConfig{Host: "mail.local", Port: 1025, From: "noreply@meridian.example"})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.Send(context.Background(), SendEmailPayload{
		To:       "reviewer@meridian.example",
		Name:     "Riley",
		Template: "report_rejected",
		Variables: map[string]string{
			"period": "2025-06",
			"reason": "missing provisions",
			"link":   "/reports/abc",
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "mail.local:1025" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "noreply@meridian.example" {
		t.Fatalf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "reviewer@meridian.example" {
		t.Fatalf("to = %v", gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{
		"Subject: Report rejected for 2025-06",
		"Hello Riley",
		"Reason: missing provisions",
		"/reports/abc",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("message missing %q:\n%s", want, body)
		}
	}
}

func TestMailerUnknownTemplate(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "mail.local", Port: 1025})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called for unknown templates")
		return nil
	}

	err := m.Send(context.Background(), SendEmailPayload{Template: "nope"})
	if err == nil || !isTemplateErr(err) {
		t.Fatalf("err = %v want unknown template", err)
	}
}

func TestMailerMissingVariablesRenderEmpty(t *testing.T) {
	var gotMsg []byte
	m := NewMailer(SMTPConfig{Host: "mail.local", Port: 1025})
	m.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	err := m.Send(context.Background(), SendEmailPayload{
		To:       "someone@meridian.example",
		Template: "report_approved",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(string(gotMsg), "<no value>") {
		t.Fatalf("missing variables leaked into body:\n%s", gotMsg)
	}
}
