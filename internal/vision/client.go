// Package vision rates images with the Cloud Vision SafeSearch API.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/restclient"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultEndpoint is the public Cloud Vision API
const DefaultEndpoint = "https://vision.googleapis.com"

// Fetcher loads the bytes of an image the API cannot read by URI
type Fetcher func(ctx context.Context, imageRef string) ([]byte, error)

// Client implements moderation.Classifier
type Client struct {
	http  *resty.Client
	fetch Fetcher
}

// NewClient creates a Client. base must carry Google credentials (see
// config.GoogleHTTPClient). fetch may be nil, in which case only gs:// and
// http(s) references can be classified.
func NewClient(base *http.Client, endpoint string, fetch Fetcher) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		http:  restclient.New(base, strings.TrimSuffix(endpoint, "/"), 30*time.Second),
		fetch: fetch,
	}
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    image     `json:"image"`
	Features []feature `json:"features"`
}

type image struct {
	Content string       `json:"content,omitempty"`
	Source  *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	ImageURI string `json:"imageUri"`
}

type feature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		SafeSearchAnnotation *struct {
			Adult    string `json:"adult"`
			Violence string `json:"violence"`
		} `json:"safeSearchAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Classify rates imageRef
func (c *Client) Classify(ctx context.Context, imageRef string) (result moderation.SafeSearch, err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "vision", "safe_search", attribute.String("image.ref", imageRef))
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("vision", "safe_search", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	img, err := c.image(ctx, imageRef)
	if err != nil {
		return result, err
	}

	var out annotateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(annotateRequest{Requests: []imageRequest{{
			Image:    img,
			Features: []feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}}}).
		SetResult(&out).
		Post("/v1/images:annotate")
	if err != nil {
		return result, fmt.Errorf("annotate %s: %w", imageRef, err)
	}
	if resp.IsError() {
		return result, restclient.ParseError(resp)
	}
	if len(out.Responses) == 0 {
		return result, fmt.Errorf("annotate %s: empty response", imageRef)
	}
	r := out.Responses[0]
	if r.Error != nil {
		return result, fmt.Errorf("annotate %s: [%d] %s", imageRef, r.Error.Code, r.Error.Message)
	}
	if r.SafeSearchAnnotation == nil {
		return result, nil
	}
	result.Adult = moderation.ParseLikelihood(r.SafeSearchAnnotation.Adult)
	result.Violence = moderation.ParseLikelihood(r.SafeSearchAnnotation.Violence)
	return result, nil
}

func (c *Client) image(ctx context.Context, imageRef string) (image, error) {
	for _, scheme := range []string{"gs://", "http://", "https://"} {
		if strings.HasPrefix(imageRef, scheme) {
			return image{Source: &imageSource{ImageURI: imageRef}}, nil
		}
	}
	if c.fetch == nil {
		return image{}, fmt.Errorf("cannot read image %q: no fetcher configured", imageRef)
	}
	data, err := c.fetch(ctx, imageRef)
	if err != nil {
		return image{}, fmt.Errorf("fetch %s: %w", imageRef, err)
	}
	return image{Content: base64.StdEncoding.EncodeToString(data)}, nil
}
