package config

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
)

// Google API scopes used by the REST collaborators
const (
	ScopeCloudVision      = "https://www.googleapis.com/auth/cloud-vision"
	ScopeFirebaseMessages = "https://www.googleapis.com/auth/firebase.messaging"
)

// GoogleHTTPClient returns an HTTP client authorised with Application Default
// Credentials (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
func GoogleHTTPClient(ctx context.Context, scopes ...string) (*http.Client, error) {
	client, err := google.DefaultClient(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}
	return client, nil
}
