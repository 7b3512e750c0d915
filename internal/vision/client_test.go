package vision

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/moderation"
)

var _ moderation.Classifier = (*Client)(nil)

func fakeVision(t *testing.T, reply string, status int, seen *annotateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			require.NoError(t, jsoniter.Unmarshal(body, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
}

func TestClassifyByURI(t *testing.T) {
	var req annotateRequest
	srv := fakeVision(t, `{"responses":[{"safeSearchAnnotation":{"adult":"LIKELY","violence":"VERY_UNLIKELY","spoof":"POSSIBLE"}}]}`, 200, &req)
	defer srv.Close()

	c := NewClient(nil, srv.URL, nil)
	res, err := c.Classify(context.Background(), "gs://pix/u1/full/p1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, moderation.SafeSearch{Adult: moderation.Likely, Violence: moderation.VeryUnlikely}, res)

	require.Len(t, req.Requests, 1)
	assert.Equal(t, "gs://pix/u1/full/p1/a.jpg", req.Requests[0].Image.Source.ImageURI)
	assert.Equal(t, "SAFE_SEARCH_DETECTION", req.Requests[0].Features[0].Type)
}

func TestClassifyByContent(t *testing.T) {
	var req annotateRequest
	srv := fakeVision(t, `{"responses":[{"safeSearchAnnotation":{"adult":"UNLIKELY","violence":"UNLIKELY"}}]}`, 200, &req)
	defer srv.Close()

	c := NewClient(nil, srv.URL, func(_ context.Context, ref string) ([]byte, error) {
		assert.Equal(t, "u1/full/p1/a.jpg", ref)
		return []byte("jpegbytes"), nil
	})
	res, err := c.Classify(context.Background(), "u1/full/p1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, moderation.Unlikely, res.Adult)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpegbytes")), req.Requests[0].Image.Content)
	assert.Nil(t, req.Requests[0].Image.Source)
}

func TestClassifyErrors(t *testing.T) {
	srv := fakeVision(t, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`, 429, nil)
	defer srv.Close()
	_, err := NewClient(nil, srv.URL, nil).Classify(context.Background(), "gs://b/x.jpg")
	assert.ErrorContains(t, err, "quota")

	perImage := fakeVision(t, `{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`, 200, nil)
	defer perImage.Close()
	_, err = NewClient(nil, perImage.URL, nil).Classify(context.Background(), "gs://b/x.jpg")
	assert.ErrorContains(t, err, "Bad image data.")

	_, err = NewClient(nil, perImage.URL, nil).Classify(context.Background(), "u1/x.jpg")
	assert.ErrorContains(t, err, "no fetcher")
}

func TestClassifyWithoutAnnotationIsUnknown(t *testing.T) {
	srv := fakeVision(t, `{"responses":[{}]}`, 200, nil)
	defer srv.Close()
	res, err := NewClient(nil, srv.URL, nil).Classify(context.Background(), "gs://b/x.jpg")
	require.NoError(t, err)
	assert.False(t, res.Classified())
}
