package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const postmarkEndpoint = "https://api.postmarkapp.com/email"

// PostmarkTransport delivers messages through the Postmark HTTP API.
type PostmarkTransport struct {
	serverToken string
	endpoint    string
	httpClient  *http.Client
}

type Option func(*PostmarkTransport)

func WithHTTPClient(c *http.Client) Option {
	return func(p *PostmarkTransport) {
		p.httpClient = c
	}
}

func WithEndpoint(url string) Option {
	return func(p *PostmarkTransport) {
		p.endpoint = url
	}
}

func NewPostmarkTransport(serverToken string, opts ...Option) *PostmarkTransport {
	p := &PostmarkTransport{
		serverToken: serverToken,
		endpoint:    postmarkEndpoint,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured returns true if the server token is set.
func (p *PostmarkTransport) Configured() bool {
	return p.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody,omitempty"`
	TextBody string `json:"TextBody"`
}

func (p *PostmarkTransport) Deliver(ctx context.Context, msg Message) error {
	if !p.Configured() {
		return fmt.Errorf("postmark not configured: missing server token")
	}

	body, err := json.Marshal(postmarkEmail{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.serverToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
