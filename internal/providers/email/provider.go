package email

import (
	"context"
	"sync"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) error {
	return nil
}

// Message is one email captured by a RecordingProvider.
type Message struct {
	To       []string
	Subject  string
	Template string
	Body     string
}

// RecordingProvider renders templates like the SMTP provider but keeps the
// messages in memory instead of delivering them.
type RecordingProvider struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (p *RecordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return p.record(Message{To: to, Subject: subject, Body: htmlBody})
}

func (p *RecordingProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) error {
	body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.record(Message{To: to, Subject: subject, Template: templateName, Body: body})
}

func (p *RecordingProvider) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *RecordingProvider) record(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, m)
	return nil
}
