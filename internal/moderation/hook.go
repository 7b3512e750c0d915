package moderation

import (
	"context"
	"fmt"

	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// TextHook moderates post and comment text after it is written. Records
// already marked sanitized are skipped, so the hook's own write does not
// trigger another pass.
type TextHook struct {
	filter *Filter
	store  store.Store
	log    *zap.Logger
}

// NewTextHook creates a TextHook
func NewTextHook(f *Filter, st store.Store, log *zap.Logger) *TextHook {
	return &TextHook{filter: f, store: st, log: logger.OrDefault(log)}
}

// Handles reports whether path is a post or comment record
func (h *TextHook) Handles(path string) bool {
	parts := store.Split(path)
	switch {
	case len(parts) == 2 && parts[0] == "posts":
		return true
	case len(parts) == 3 && parts[0] == "comments":
		return true
	}
	return false
}

// OnWrite moderates the record now stored at path. It returns nil when
// there was nothing to do.
func (h *TextHook) OnWrite(ctx context.Context, path string, record any) (*models.ModerationVerdict, error) {
	if !h.Handles(path) {
		return nil, nil
	}
	fields, ok := record.(map[string]any)
	if !ok || fields == nil {
		return nil, nil
	}
	if sanitized, _ := fields["sanitized"].(bool); sanitized {
		return nil, nil
	}
	text, _ := fields["text"].(string)

	v := h.filter.Moderate(text)
	path = store.Clean(path)
	err := h.store.Update(ctx, map[string]any{
		path + "/text":      v.Text,
		path + "/sanitized": true,
		path + "/moderated": v.WasModified,
	})
	if err != nil {
		return nil, fmt.Errorf("save moderated text for %s: %w", path, err)
	}
	if v.WasModified {
		h.log.Info("Text moderated", logger.WithPath(path), zap.Any("reasons", v.Reasons))
	}
	return &v, nil
}
