// Package hooks routes backing-store and identity events to the handlers
// that keep derived data in step.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zfogg/friendlypix/internal/admins"
	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/hashtags"
	"github.com/zfogg/friendlypix/internal/imageblur"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/notify"
	"github.com/zfogg/friendlypix/internal/profiles"
	"github.com/zfogg/friendlypix/internal/reports"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// Event names accepted by Dispatch
const (
	EventWrite           = "write"
	EventUserCreated     = "user-created"
	EventUserDeleted     = "user-deleted"
	EventObjectFinalized = "object-finalized"
)

// ErrUnknownEvent is returned for event names Dispatch does not handle
var ErrUnknownEvent = errors.New("unknown hook event")

// Payload is the body of a hook call. Write events use Path, Before and
// After; identity events use User; storage events use Object.
type Payload struct {
	Path   string       `json:"path,omitempty"`
	Before any          `json:"before,omitempty"`
	After  any          `json:"after,omitempty"`
	User   *models.User `json:"user,omitempty"`
	Object string       `json:"object,omitempty"`
}

// Outcome lists the handlers that ran for one event
type Outcome struct {
	Event    string   `json:"event"`
	Handlers []string `json:"handlers"`
	Result   any      `json:"result,omitempty"`
}

// Dispatcher fans events out to the configured handlers. Nil handlers are
// skipped.
type Dispatcher struct {
	Text      *moderation.TextHook
	Hashtags  *hashtags.Indexer
	Followers *notify.FollowerNotifier
	Reports   *reports.Mailer
	Admins    *admins.Marker
	Profiles  *profiles.Publisher
	Guard     *moderation.Guard
	Blurrer   *imageblur.Blurrer
	Cascade   *cascade.Service
	Users     repository.UserRepository
	Log       *zap.Logger
}

// Dispatch runs every handler interested in the event. Handler errors are
// joined; one failing handler does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, p Payload) (*Outcome, error) {
	out := &Outcome{Event: event}
	var err error
	switch event {
	case EventWrite:
		err = d.write(ctx, p, out)
	case EventUserCreated:
		err = d.userCreated(ctx, p, out)
	case EventUserDeleted:
		err = d.userDeleted(ctx, p, out)
	case EventObjectFinalized:
		err = d.objectFinalized(ctx, p, out)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	log := logger.OrDefault(d.Log)
	if err != nil {
		log.Warn("Hook handler failed", zap.String("event", event), logger.WithPath(p.Path), zap.Error(err))
	} else {
		log.Debug("Hook dispatched", zap.String("event", event), logger.WithPath(p.Path), zap.Strings("handlers", out.Handlers))
	}
	return out, err
}

func (d *Dispatcher) write(ctx context.Context, p Payload, out *Outcome) error {
	parts := store.Split(p.Path)
	if len(parts) == 0 {
		return fmt.Errorf("write event has no path")
	}
	created := p.Before == nil && p.After != nil
	deleted := p.Before != nil && p.After == nil
	var errs []error
	ran := func(name string, err error) {
		out.Handlers = append(out.Handlers, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if d.Text != nil && d.Text.Handles(p.Path) && p.After != nil {
		_, err := d.Text.OnWrite(ctx, p.Path, p.After)
		ran("moderate-text", err)
	}

	switch {
	case d.Hashtags != nil && len(parts) == 2 && parts[0] == "posts":
		ran("hashtags", d.Hashtags.OnPostTextWritten(ctx, parts[1], textOf(p.Before), textOf(p.After)))
	case d.Hashtags != nil && len(parts) == 3 && parts[0] == "posts" && parts[2] == "text":
		before, _ := p.Before.(string)
		after, _ := p.After.(string)
		ran("hashtags", d.Hashtags.OnPostTextWritten(ctx, parts[1], before, after))

	case d.Followers != nil && len(parts) == 3 && parts[0] == "followers":
		res, err := d.Followers.OnFollow(ctx, parts[1], parts[2], p.After)
		out.Result = res
		ran("follower-notification", err)

	case d.Reports != nil && created && (parts[0] == "postFlags" || parts[0] == "commentFlags"):
		if flag, ok := reports.FlagFromPath(p.Path); ok {
			out.Result = d.Reports.OnFlag(ctx, flag)
			ran("report-email", nil)
		}

	case d.Admins != nil && len(parts) == 2 && parts[0] == "admins":
		switch {
		case created:
			ran("mark-admin", d.Admins.OnCreate(ctx, parts[1], p.After))
		case deleted:
			d.Admins.OnDelete(ctx, parts[1], p.Before)
			ran("unmark-admin", nil)
		}

	case d.Profiles != nil && len(parts) == 3 && parts[0] == "people" && parts[2] == "profile_picture":
		if url, ok := p.After.(string); ok {
			copied, err := d.Profiles.CacheProfilePicture(ctx, parts[1], url)
			out.Result = copied
			ran("cache-profile-picture", err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) userCreated(ctx context.Context, p Payload, out *Outcome) error {
	if p.User == nil || p.User.ID == "" {
		return fmt.Errorf("user-created event has no user")
	}
	if d.Users != nil {
		if err := d.Users.CreateUser(ctx, p.User); err != nil {
			return fmt.Errorf("record account: %w", err)
		}
		out.Handlers = append(out.Handlers, "identity")
	}
	if d.Profiles != nil {
		out.Handlers = append(out.Handlers, "public-profile")
		return d.Profiles.OnUserCreate(ctx, p.User)
	}
	return nil
}

func (d *Dispatcher) userDeleted(ctx context.Context, p Payload, out *Outcome) error {
	if p.User == nil || p.User.ID == "" {
		return fmt.Errorf("user-deleted event has no user")
	}
	if d.Cascade == nil {
		return nil
	}
	out.Handlers = append(out.Handlers, "cleanup-account")
	report, err := d.Cascade.RunCascadeDelete(ctx, models.KindUser, p.User.ID)
	out.Result = report
	return err
}

func (d *Dispatcher) objectFinalized(ctx context.Context, p Payload, out *Outcome) error {
	if strings.TrimSpace(p.Object) == "" {
		return fmt.Errorf("object-finalized event has no object")
	}
	if d.Guard == nil {
		return nil
	}
	var onFlagged moderation.OnFlagged
	if d.Blurrer != nil {
		onFlagged = d.Blurrer.OnFlagged
	}
	out.Handlers = append(out.Handlers, "blur-check")
	res, err := d.Guard.BlurCheck(ctx, p.Object, onFlagged)
	out.Result = res
	return err
}

func textOf(record any) string {
	m, _ := record.(map[string]any)
	s, _ := m["text"].(string)
	return s
}
