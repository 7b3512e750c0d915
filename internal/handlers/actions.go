package handlers

import (
	"context"
	"fmt"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/moderation"
)

// Action names accepted by Invoke
const (
	ActionCascade                = "cascade"
	ActionModerate               = "moderate"
	ActionBlurCheck              = "blur-check"
	ActionDeleteOldPosts         = "delete-old-posts"
	ActionDeleteInactiveAccounts = "delete-inactive-accounts"
	ActionUpdateProfiles         = "update-profiles"
	ActionHook                   = "hook"
)

// Action is one trigger invocation outside HTTP, such as a serverless event
type Action struct {
	Action   string         `json:"action"`
	Kind     string         `json:"kind,omitempty"`
	ID       string         `json:"id,omitempty"`
	Text     *string        `json:"text,omitempty"`
	ImageRef string         `json:"image_ref,omitempty"`
	DryRun   bool           `json:"dry_run,omitempty"`
	Event    string         `json:"event,omitempty"`
	Payload  *hooks.Payload `json:"payload,omitempty"`
}

// Invoke runs a in-process and returns what the matching HTTP route would
// have returned as its body.
func (h *Handlers) Invoke(ctx context.Context, a Action) (any, error) {
	switch a.Action {
	case ActionCascade:
		kind, err := models.ParseKind(a.Kind)
		if err != nil {
			return nil, err
		}
		if a.ID == "" {
			return nil, apperrors.ValidationError("id", "required")
		}
		return h.cascade.RunCascadeDelete(ctx, kind, a.ID)

	case ActionModerate:
		if a.Text == nil {
			return nil, apperrors.ValidationError("text", "required")
		}
		return h.filter.Moderate(*a.Text), nil

	case ActionBlurCheck:
		if h.guard == nil {
			return nil, apperrors.ServiceUnavailable("image classifier")
		}
		if a.ImageRef == "" {
			return nil, apperrors.ValidationError("image_ref", "required")
		}
		var onFlagged moderation.OnFlagged
		if !a.DryRun {
			onFlagged = h.blurrer
		}
		return h.guard.BlurCheck(ctx, a.ImageRef, onFlagged)

	case ActionDeleteOldPosts:
		return h.jobs.DeleteOldPosts(ctx)

	case ActionDeleteInactiveAccounts:
		return h.jobs.DeleteInactiveAccounts(ctx)

	case ActionUpdateProfiles:
		n, err := h.profiles.UpdateAll(ctx)
		return map[string]int{"updated": n}, err

	case ActionHook:
		if a.Payload == nil {
			a.Payload = &hooks.Payload{}
		}
		return h.hooks.Dispatch(ctx, a.Event, *a.Payload)
	}
	return nil, apperrors.BadRequest(fmt.Sprintf("unknown action %q", a.Action))
}
