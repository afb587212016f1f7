// Package email renders templated messages and hands them to a transport.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var ErrUnknownTemplate = errors.New("unknown email template")

// Message is a fully rendered email.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Mailer renders <ref>.txt and <ref>.html templates and delivers the result.
type Mailer struct {
	transport Transport
	text      *texttemplate.Template
	html      *htmltemplate.Template
}

func NewMailer(t Transport) *Mailer {
	return &Mailer{
		transport: t,
		text:      texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt")),
		html:      htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html")),
	}
}

// Send renders templateRef with vars and delivers it. A missing HTML variant
// is allowed; a missing text variant is not.
func (m *Mailer) Send(ctx context.Context, from, to, subject, templateRef string, vars map[string]any) error {
	textTmpl := m.text.Lookup(templateRef + ".txt")
	if textTmpl == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateRef)
	}

	var text bytes.Buffer
	if err := textTmpl.Execute(&text, vars); err != nil {
		return fmt.Errorf("render text template %s: %w", templateRef, err)
	}

	msg := Message{
		From:     from,
		To:       to,
		Subject:  subject,
		TextBody: text.String(),
	}

	if htmlTmpl := m.html.Lookup(templateRef + ".html"); htmlTmpl != nil {
		var html bytes.Buffer
		if err := htmlTmpl.Execute(&html, vars); err != nil {
			return fmt.Errorf("render html template %s: %w", templateRef, err)
		}
		msg.HTMLBody = html.String()
	}

	return m.transport.Deliver(ctx, msg)
}
