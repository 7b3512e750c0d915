package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// S3 batch deletes accept at most this many keys
const s3DeleteBatch = 1000

// S3Store stores post images in an S3 bucket
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Store creates an S3-backed ObjectStore using the default AWS
// credential chain
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, region: region}, nil
}

// DeleteObject deletes a single object
func (s *S3Store) DeleteObject(ctx context.Context, name string) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "s3", "delete_object", attribute.String("s3.key", name))
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("s3", "delete_object", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", name, err)
	}
	return nil
}

// DeletePrefix lists the prefix page by page and deletes each page in one
// batch request
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (deleted int, err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "s3", "delete_prefix", attribute.String("s3.prefix", prefix))
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int("s3.deleted", deleted))
		metrics.RecordExternalCall("s3", "delete_prefix", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(s3DeleteBatch),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list %s in S3: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
		}
		deleted += len(ids) - len(out.Errors)
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, fmt.Errorf("failed to delete %d objects under %s, first %s: %s",
				len(out.Errors), prefix, aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return deleted, nil
}

// Download reads an object with its metadata
func (s *S3Store) Download(ctx context.Context, name string) (obj *Object, err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "s3", "get_object", attribute.String("s3.key", name))
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("s3", "get_object", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("object %s does not exist: %w", name, err)
		}
		return nil, fmt.Errorf("failed to download %s from S3: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return &Object{Data: data, ContentType: aws.ToString(out.ContentType), Metadata: out.Metadata}, nil
}

// Upload writes an object, replacing any existing one
func (s *S3Store) Upload(ctx context.Context, name string, obj *Object) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "s3", "put_object",
		attribute.String("s3.key", name), attribute.Int("s3.size_bytes", len(obj.Data)))
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("s3", "put_object", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(name),
		Body:         bytes.NewReader(obj.Data),
		ContentType:  aws.String(contentTypeFor(name, obj)),
		CacheControl: aws.String("max-age=3600"),
		Metadata:     obj.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", name, err)
	}
	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (s *S3Store) CheckBucketAccess(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", s.bucket, err)
	}
	return nil
}
