// Package restclient builds the resty clients used for Google REST
// collaborators (image classifier, push sender).
package restclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const userAgent = "FriendlyPix-Fanout/1.0"

// New returns a resty client on top of base (which carries credentials),
// with tracing and debug logging of every request.
func New(base *http.Client, baseURL string, timeout time.Duration) *resty.Client {
	c := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient(base, timeout))
	c.SetBaseURL(baseURL)
	c.SetHeader("User-Agent", userAgent)
	c.SetJSONMarshaler(json.Marshal)
	c.SetJSONUnmarshaler(json.Unmarshal)

	c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		logger.Log.Debug("HTTP request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})
	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Log.Debug("HTTP response",
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()))
		return nil
	})
	return c
}

// APIError is a non-2xx response from a Google API
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Details    []map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Status, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    int              `json:"code"`
		Message string           `json:"message"`
		Status  string           `json:"status"`
		Details []map[string]any `json:"details"`
	} `json:"error"`
}

// ParseError turns a failed response into an *APIError
func ParseError(resp *resty.Response) error {
	var env errorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Status:     env.Error.Status,
			Message:    env.Error.Message,
			Details:    env.Error.Details,
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Status:     http.StatusText(resp.StatusCode()),
		Message:    string(resp.Body()),
	}
}

// DetailString returns the first string value named key found in the
// error details, e.g. the FCM "errorCode".
func (e *APIError) DetailString(key string) string {
	for _, d := range e.Details {
		if v, ok := d[key].(string); ok {
			return v
		}
	}
	return ""
}
