package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// MinioConfig locates a self-hosted bucket
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore stores post images in a MinIO (or any S3 compatible) bucket
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a MinIO-backed ObjectStore
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioStore) track(ctx context.Context, op, name string) (context.Context, func(error)) {
	ctx, span := telemetry.TraceExternalCall(ctx, "minio", op, attribute.String("minio.object", name))
	start := time.Now()
	return ctx, func(err error) {
		metrics.RecordExternalCall("minio", op, time.Since(start), err)
		telemetry.EndSpan(span, err)
	}
}

// DeleteObject removes a single object
func (m *MinioStore) DeleteObject(ctx context.Context, name string) error {
	ctx, done := m.track(ctx, "remove_object", name)
	err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to delete %s from minio: %w", name, err)
	}
	return nil
}

// DeletePrefix streams the listing of prefix into a bulk remove
func (m *MinioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, done := m.track(ctx, "remove_prefix", prefix)

	listed := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	objects := make(chan minio.ObjectInfo)
	var listErr error
	count := 0
	go func() {
		defer close(objects)
		for obj := range listed {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case objects <- obj:
				count++
			case <-ctx.Done():
				listErr = ctx.Err()
				return
			}
		}
	}()

	var removeErr error
	failed := 0
	for res := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err == nil {
			continue
		}
		failed++
		if removeErr == nil {
			removeErr = fmt.Errorf("failed to delete %s: %w", res.ObjectName, res.Err)
		}
	}
	// RemoveObjects drains objects before its result channel closes, so the
	// lister has finished by now.
	count -= failed
	err := listErr
	if err == nil {
		err = removeErr
	}
	done(err)
	if err != nil {
		return count, fmt.Errorf("failed to delete prefix %s from minio: %w", prefix, err)
	}
	return count, nil
}

// Download reads an object with its user metadata
func (m *MinioStore) Download(ctx context.Context, name string) (*Object, error) {
	ctx, done := m.track(ctx, "get_object", name)
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to download %s from minio: %w", name, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	data, err := io.ReadAll(obj)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return &Object{Data: data, ContentType: info.ContentType, Metadata: info.UserMetadata}, nil
}

// Upload writes an object, replacing any existing one
func (m *MinioStore) Upload(ctx context.Context, name string, obj *Object) error {
	ctx, done := m.track(ctx, "put_object", name)
	_, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(obj.Data), int64(len(obj.Data)),
		minio.PutObjectOptions{ContentType: contentTypeFor(name, obj), UserMetadata: obj.Metadata})
	done(err)
	if err != nil {
		return fmt.Errorf("failed to upload %s to minio: %w", name, err)
	}
	return nil
}

// CheckBucketAccess verifies that the bucket exists and is reachable
func (m *MinioStore) CheckBucketAccess(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("cannot access minio bucket %s: %w", m.bucket, err)
	}
	if !ok {
		return fmt.Errorf("minio bucket %s does not exist", m.bucket)
	}
	return nil
}
