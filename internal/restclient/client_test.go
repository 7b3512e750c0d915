package restclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/google":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"status":"NOT_FOUND","message":"Requested entity was not found.",
				"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	c := New(nil, srv.URL, time.Second)

	resp, err := c.R().Post("/google")
	require.NoError(t, err)
	apiErr, ok := ParseError(resp).(*APIError)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Status)
	assert.Equal(t, "UNREGISTERED", apiErr.DetailString("errorCode"))

	resp, err = c.R().Get("/plain")
	require.NoError(t, err)
	apiErr = ParseError(resp).(*APIError)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, "Bad Gateway", apiErr.Status)
}
