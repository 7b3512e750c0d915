// Package push delivers browser notifications through Firebase Cloud
// Messaging (HTTP v1 API).
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/restclient"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"github.com/zfogg/friendlypix/internal/workpool"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultEndpoint is the public FCM API
const DefaultEndpoint = "https://fcm.googleapis.com"

// ErrStaleToken marks a device token FCM will never deliver to again
var ErrStaleToken = errors.New("registration token is invalid or no longer registered")

// Notification is the visible part of a push message
type Notification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Icon        string `json:"icon,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

// Result is the outcome for one device token
type Result struct {
	Token string
	Err   error
}

// Stale reports whether the token should be removed from the user's profile
func (r Result) Stale() bool {
	return errors.Is(r.Err, ErrStaleToken)
}

// Sender sends one notification to many device tokens
type Sender interface {
	SendEach(ctx context.Context, tokens []string, n Notification) ([]Result, error)
}

// FCMSender implements Sender on the FCM v1 REST API
type FCMSender struct {
	http        *resty.Client
	project     string
	concurrency int
}

// NewFCMSender creates a sender. base must carry credentials with the
// firebase.messaging scope.
func NewFCMSender(base *http.Client, endpoint, projectID string) *FCMSender {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &FCMSender{
		http:        restclient.New(base, strings.TrimSuffix(endpoint, "/"), 15*time.Second),
		project:     projectID,
		concurrency: 10,
	}
}

type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	Token        string       `json:"token"`
	Notification notification `json:"notification"`
	Webpush      *webpush     `json:"webpush,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type webpush struct {
	Notification map[string]string `json:"notification,omitempty"`
	FCMOptions   map[string]string `json:"fcm_options,omitempty"`
}

func buildMessage(token string, n Notification) message {
	m := message{Token: token, Notification: notification{Title: n.Title, Body: n.Body}}
	if n.Icon != "" || n.ClickAction != "" {
		m.Webpush = &webpush{}
		if n.Icon != "" {
			m.Webpush.Notification = map[string]string{"icon": n.Icon}
		}
		if n.ClickAction != "" {
			m.Webpush.FCMOptions = map[string]string{"link": n.ClickAction}
		}
	}
	return m
}

// SendEach sends n to every token. The returned slice has one Result per
// token in input order; the error is only set when the batch could not run.
func (s *FCMSender) SendEach(ctx context.Context, tokens []string, n Notification) ([]Result, error) {
	results := make([]Result, len(tokens))
	units := make([]workpool.Unit, len(tokens))
	for i, token := range tokens {
		results[i].Token = token
		units[i] = workpool.Unit{
			Name: fmt.Sprintf("push-%d", i),
			Run: func(ctx context.Context) error {
				results[i].Err = s.send(ctx, token, n)
				return results[i].Err
			},
		}
	}
	if _, err := workpool.Start(ctx, workpool.FromSlice(units), s.concurrency); err != nil {
		return results, err
	}
	return results, nil
}

func (s *FCMSender) send(ctx context.Context, token string, n Notification) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "fcm", "send", attribute.String("fcm.project", s.project))
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("fcm", "send", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sendRequest{Message: buildMessage(token, n)}).
		Post(fmt.Sprintf("/v1/projects/%s/messages:send", s.project))
	if err != nil {
		return fmt.Errorf("send to token: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	return classify(restclient.ParseError(resp))
}

// classify marks the FCM errors that mean the token is dead
func classify(err error) error {
	var apiErr *restclient.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	code := apiErr.DetailString("errorCode")
	switch {
	case code == "UNREGISTERED", apiErr.Status == "NOT_FOUND":
		return fmt.Errorf("%w: %v", ErrStaleToken, err)
	case code == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(apiErr.Message), "registration token"):
		return fmt.Errorf("%w: %v", ErrStaleToken, err)
	}
	return err
}

var _ Sender = (*FCMSender)(nil)
