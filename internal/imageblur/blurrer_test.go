package imageblur

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

// fakeBlur upper-cases the bytes instead of running ffmpeg
func fakeBlur(_ context.Context, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, bytes.ToUpper(data), 0o600)
}

func TestParseImagePath(t *testing.T) {
	img, err := ParseImagePath("u1/full/p1/cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, ImagePath{UID: "u1", Size: "full", PostID: "p1", File: "cat.jpg"}, img)

	_, err = ParseImagePath("u1/profilePic.jpg")
	assert.Error(t, err)
}

func TestBlurThroughGuard(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMockObjectStore()
	require.NoError(t, objects.Upload(ctx, "u1/full/p1/cat.jpg", &storage.Object{
		Data:        []byte("raw image"),
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"owner": "u1"},
	}))
	tree := memtree.New(nil)
	require.NoError(t, tree.Load(map[string]any{
		"posts": map[string]any{"p1": map[string]any{"full_url": "https://cdn/u1/full/p1/cat.jpg?v=1"}},
	}))

	b := NewBlurrer(objects, tree, "https://cdn", fakeBlur, nil)
	b.tmpDir = t.TempDir()
	classifier := classifierFunc(func(context.Context, string) (moderation.SafeSearch, error) {
		return moderation.SafeSearch{Adult: moderation.VeryLikely}, nil
	})
	guard := moderation.NewGuard(classifier, moderation.DefaultPolicy(), false, nil)

	res, err := guard.BlurCheck(ctx, "gs://bucket/u1/full/p1/cat.jpg", b.OnFlagged)
	require.NoError(t, err)
	assert.True(t, res.Blurred)

	obj := objects.Objects["u1/full/p1/cat.jpg"]
	assert.Equal(t, []byte("RAW IMAGE"), obj.Data)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, map[string]string{"owner": "u1"}, obj.Metadata)

	url, err := tree.Read(ctx, "/posts/p1/full_url")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/u1/full/p1/cat.jpg?v=1&blurred", url)

	// blurring again does not stack suffixes
	require.NoError(t, b.Blur(ctx, "u1/full/p1/cat.jpg"))
	url, err = tree.Read(ctx, "/posts/p1/full_url")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/u1/full/p1/cat.jpg?v=1&blurred", url)
}

func TestBlurFailures(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMockObjectStore()
	tree := memtree.New(nil)
	b := NewBlurrer(objects, tree, "", func(context.Context, string, string) error {
		return errors.New("ffmpeg missing")
	}, nil)
	b.tmpDir = t.TempDir()

	assert.Error(t, b.Blur(ctx, "u1/full/p1/missing.jpg"))

	require.NoError(t, objects.Upload(ctx, "u1/thumb/p1/a.jpg", &storage.Object{Data: []byte("x")}))
	assert.ErrorContains(t, b.Blur(ctx, "u1/thumb/p1/a.jpg"), "ffmpeg missing")
	assert.Equal(t, []byte("x"), objects.Objects["u1/thumb/p1/a.jpg"].Data)
}

type classifierFunc func(ctx context.Context, ref string) (moderation.SafeSearch, error)

func (f classifierFunc) Classify(ctx context.Context, ref string) (moderation.SafeSearch, error) {
	return f(ctx, ref)
}
