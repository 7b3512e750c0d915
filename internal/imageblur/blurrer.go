// Package imageblur replaces flagged post images with a blurred copy and
// points the post at it.
package imageblur

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// blurredSuffix is appended to the post's image URL so clients refetch it
const blurredSuffix = "&blurred"

// Runner produces a blurred copy of the image at in, written to out
type Runner func(ctx context.Context, in, out string) error

// FFmpeg blurs with ffmpeg's boxblur filter
func FFmpeg(ctx context.Context, in, out string) error {
	args := []string{
		"-i", in,
		"-vf", "boxblur=luma_radius=18:luma_power=2:chroma_radius=18:chroma_power=2",
		"-frames:v", "1",
		"-y",
		out,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	return nil
}

// ImagePath is the layout of uploaded post images: {uid}/{size}/{postId}/{file}
type ImagePath struct {
	UID    string
	Size   string // "full" or "thumb"
	PostID string
	File   string
}

// ParseImagePath splits an object name into its parts
func ParseImagePath(name string) (ImagePath, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, "/"), "/", 4)
	if len(parts) < 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return ImagePath{}, fmt.Errorf("object %q is not a post image", name)
	}
	return ImagePath{UID: parts[0], Size: parts[1], PostID: parts[2], File: parts[3]}, nil
}

// Blurrer blurs images and updates the posts that show them
type Blurrer struct {
	objects storage.ObjectStore
	store   store.Store
	baseURL string
	run     Runner
	tmpDir  string
	log     *zap.Logger
}

// NewBlurrer creates a Blurrer. run defaults to FFmpeg.
func NewBlurrer(objects storage.ObjectStore, st store.Store, baseURL string, run Runner, log *zap.Logger) *Blurrer {
	if run == nil {
		run = FFmpeg
	}
	return &Blurrer{
		objects: objects,
		store:   st,
		baseURL: baseURL,
		run:     run,
		tmpDir:  os.TempDir(),
		log:     logger.OrDefault(log),
	}
}

// OnFlagged is a moderation.OnFlagged that blurs the image
func (b *Blurrer) OnFlagged(ctx context.Context, imageRef string, _ moderation.SafeSearch) error {
	return b.Blur(ctx, imageRef)
}

// Blur downloads the image, blurs it, uploads it back under the same name
// keeping its metadata, then marks the post URL as blurred.
func (b *Blurrer) Blur(ctx context.Context, imageRef string) error {
	name, err := storage.ObjectName(imageRef, b.baseURL)
	if err != nil {
		return err
	}
	img, err := ParseImagePath(name)
	if err != nil {
		return err
	}

	obj, err := b.objects.Download(ctx, name)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	blurred, err := b.blur(ctx, obj.Data, filepath.Ext(name))
	if err != nil {
		return err
	}
	obj.Data = blurred
	if err := b.objects.Upload(ctx, name, obj); err != nil {
		return fmt.Errorf("upload blurred %s: %w", name, err)
	}
	b.log.Info("Blurred image uploaded", zap.String("object", name))

	return b.refreshPost(ctx, img)
}

func (b *Blurrer) blur(ctx context.Context, data []byte, ext string) ([]byte, error) {
	if ext == "" {
		ext = ".jpg"
	}
	dir, err := os.MkdirTemp(b.tmpDir, "blur-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in"+ext)
	out := filepath.Join(dir, "out"+ext)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := b.run(ctx, in, out); err != nil {
		return nil, err
	}
	blurred, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read blurred image: %w", err)
	}
	return blurred, nil
}

func (b *Blurrer) refreshPost(ctx context.Context, img ImagePath) error {
	path := store.Join("posts", img.PostID, img.Size+"_url")
	cur, err := b.store.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	url, _ := cur.(string)
	if url == "" {
		b.log.Warn("Post has no image URL to refresh", logger.WithPath(path))
		return nil
	}
	if strings.HasSuffix(url, blurredSuffix) {
		return nil
	}
	if err := b.store.Write(ctx, path, url+blurredSuffix); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	b.log.Info("Blurred image URL updated", logger.WithPath(path), logger.WithUserID(img.UID))
	return nil
}
