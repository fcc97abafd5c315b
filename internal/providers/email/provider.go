package email

import (
	"context"
	"io"
)

// Attachment is an optional file sent alongside the HTML body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendWithAttachment(ctx context.Context, to []string, subject string, htmlBody string, att Attachment) error
}

// NoOpProvider is wired when SMTP is not configured so callers never nil-check.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendWithAttachment(ctx context.Context, to []string, subject string, htmlBody string, att Attachment) error {
	return nil
}
