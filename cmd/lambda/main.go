package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/container"
	"github.com/zfogg/friendlypix/internal/handlers"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/logger"
	"go.uber.org/zap"
)

var h *handlers.Handlers

func init() {
	cfg, err := config.Load()
	if err != nil {
		logger.FatalWithFields("Failed to load config", err)
	}
	if err := logger.Initialize(cfg.LogLevel, "/tmp/fanout.log"); err != nil {
		logger.FatalWithFields("Failed to initialize logger", err)
	}
	c, err := container.Build(context.Background(), cfg, logger.Log)
	if err != nil {
		logger.FatalWithFields("Failed to build container", err)
	}
	h = handlers.NewHandlers(c)
	logger.Log.Info("Fan-out lambda initialized")
}

// handle accepts either an Action document or an S3 notification; new
// objects in the bucket go through the image check.
func handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var s3Event events.S3Event
	if err := json.Unmarshal(raw, &s3Event); err == nil && len(s3Event.Records) > 0 {
		return handleS3(ctx, s3Event)
	}

	var a handlers.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	logger.Log.Info("Invoking action", zap.String("action", a.Action))
	return h.Invoke(ctx, a)
}

func handleS3(ctx context.Context, e events.S3Event) (any, error) {
	var (
		outcomes []any
		errs     []error
	)
	for _, rec := range e.Records {
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			continue
		}
		ref := fmt.Sprintf("s3://%s/%s", rec.S3.Bucket.Name, rec.S3.Object.URLDecodedKey)
		out, err := h.Invoke(ctx, handlers.Action{
			Action:  handlers.ActionHook,
			Event:   hooks.EventObjectFinalized,
			Payload: &hooks.Payload{Object: ref},
		})
		if err != nil {
			logger.Log.Warn("Object check failed", zap.String("object", ref), zap.Error(err))
			errs = append(errs, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errors.Join(errs...)
}

func main() {
	lambda.Start(handle)
}
