// Package email delivers moderator notifications through AWS SES.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/telemetry"
)

// Message is one outgoing email
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// sesAPI is the part of the SES client the mailer uses
type sesAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, opts ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends email through AWS SES
type SESMailer struct {
	client    sesAPI
	fromEmail string
	fromName  string
}

// NewSESMailer creates a mailer using the default AWS credential chain
func NewSESMailer(region, fromEmail, fromName string) (*SESMailer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESMailer{client: ses.NewFromConfig(cfg), fromEmail: fromEmail, fromName: fromName}, nil
}

func (e *SESMailer) from() string {
	if e.fromName == "" {
		return e.fromEmail
	}
	return fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
}

// Send delivers msg as a multipart HTML and text email
func (e *SESMailer) Send(ctx context.Context, msg Message) (err error) {
	if len(msg.To) == 0 {
		return fmt.Errorf("email %q has no recipients", msg.Subject)
	}
	ctx, span := telemetry.TraceExternalCall(ctx, "ses", "send_email")
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("ses", "send_email", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	_, err = e.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(e.from()),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		return apperrors.External("ses", "send_email", err)
	}
	return nil
}

// MockMailer records messages instead of sending them
type MockMailer struct {
	Sent     []Message
	SendFunc func(ctx context.Context, msg Message) error
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

var (
	_ Mailer = (*SESMailer)(nil)
	_ Mailer = (*MockMailer)(nil)
)
