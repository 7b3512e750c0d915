package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		ref      string
		expected string
	}{
		{"gs://friendly-pix.appspot.com/u1/full/p1/pic.jpg", "u1/full/p1/pic.jpg"},
		{"s3://bucket/u1/thumb/p1/pic.jpg", "u1/thumb/p1/pic.jpg"},
		{"/u1/full/p1/pic.jpg", "u1/full/p1/pic.jpg"},
		{"u1/full/p1/pic.jpg", "u1/full/p1/pic.jpg"},
		{"https://cdn.example.com/u1/full/p1/my%20pic.jpg?v=2", "u1/full/p1/my pic.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			name, err := ObjectName(tt.ref, "https://cdn.example.com/")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestObjectNameRejectsForeignReferences(t *testing.T) {
	for _, ref := range []string{"", "gs://bucket-only", "https://elsewhere.com/a.jpg"} {
		_, err := ObjectName(ref, "https://cdn.example.com")
		assert.Error(t, err, ref)
	}
}

func TestGetContentTypeForImage(t *testing.T) {
	tests := []struct {
		extension string
		expected  string
	}{
		{".jpg", "image/jpeg"},
		{".JPEG", "image/jpeg"},
		{".png", "image/png"},
		{".gif", "image/gif"},
		{".webp", "image/webp"},
		{".bmp", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.extension, func(t *testing.T) {
			assert.Equal(t, tt.expected, getContentTypeForImage(tt.extension))
		})
	}
	assert.Equal(t, "image/png", contentTypeFor("a.jpg", &Object{ContentType: "image/png"}))
}

func TestMockObjectStore(t *testing.T) {
	ctx := context.Background()
	m := NewMockObjectStore()
	require.NoError(t, m.Upload(ctx, "u1/full/p1/a.jpg", &Object{Data: []byte("a"), Metadata: map[string]string{"k": "v"}}))
	require.NoError(t, m.Upload(ctx, "u1/thumb/p1/a.jpg", &Object{Data: []byte("b")}))
	require.NoError(t, m.Upload(ctx, "u10/full/p2/a.jpg", &Object{Data: []byte("c")}))

	obj, err := m.Download(ctx, "u1/full/p1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "v", obj.Metadata["k"])

	n, err := m.DeletePrefix(ctx, "u1/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, m.Objects, 1)
	assert.Contains(t, m.Objects, "u10/full/p2/a.jpg")
}
