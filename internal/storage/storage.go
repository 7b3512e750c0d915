// Package storage removes, downloads and re-uploads post images in object
// storage. S3 and MinIO drivers share the ObjectStore interface.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Object is an object body with the metadata that must survive a rewrite
type Object struct {
	Data        []byte            `json:"-"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ObjectStore is the object storage collaborator
type ObjectStore interface {
	// DeleteObject removes one object. Removing a missing object succeeds.
	DeleteObject(ctx context.Context, name string) error
	// DeletePrefix removes every object whose name starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Download(ctx context.Context, name string) (*Object, error)
	Upload(ctx context.Context, name string, obj *Object) error
}

// BucketChecker is implemented by stores that can verify their bucket
type BucketChecker interface {
	CheckBucketAccess(ctx context.Context) error
}

// ObjectName turns a stored reference into an object name. References can
// be bare names, "gs://bucket/name", "s3://bucket/name" or a CDN URL under
// baseURL.
func ObjectName(ref, baseURL string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty object reference")
	}
	for _, scheme := range []string{"gs://", "s3://"} {
		if rest, ok := strings.CutPrefix(ref, scheme); ok {
			_, name, found := strings.Cut(rest, "/")
			if !found || name == "" {
				return "", fmt.Errorf("object reference %q has no object name", ref)
			}
			return name, nil
		}
	}
	if baseURL != "" {
		if rest, ok := strings.CutPrefix(ref, strings.TrimSuffix(baseURL, "/")+"/"); ok {
			if i := strings.IndexAny(rest, "?#"); i >= 0 {
				rest = rest[:i]
			}
			return url.PathUnescape(rest)
		}
	}
	if strings.Contains(ref, "://") {
		return "", fmt.Errorf("object reference %q is not in this bucket", ref)
	}
	return strings.TrimPrefix(ref, "/"), nil
}

// getContentTypeForImage returns the MIME type for an image extension
func getContentTypeForImage(extension string) string {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func contentTypeFor(name string, obj *Object) string {
	if obj.ContentType != "" {
		return obj.ContentType
	}
	return getContentTypeForImage(filepath.Ext(name))
}
