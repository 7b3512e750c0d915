// Package notify sends push notifications to users when they gain a
// follower.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zfogg/friendlypix/internal/fanout"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/push"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

const (
	defaultIcon     = "/images/silhouette.jpg"
	defaultWebBase  = "https://friendly-pix.com"
	newFollowerText = "You have a new follower!"
)

// Outcome describes what happened to one follow event
type Outcome string

const (
	OutcomeUnfollowed  Outcome = "unfollowed"
	OutcomeDisabled    Outcome = "disabled"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeNoTokens    Outcome = "no_tokens"
	OutcomeSent        Outcome = "sent"
)

// Result is returned by OnFollow
type Result struct {
	Outcome       Outcome `json:"outcome"`
	Delivered     int     `json:"delivered"`
	TokensRemoved int     `json:"tokens_removed"`
}

// FollowerNotifier reacts to writes at /followers/{followed}/{follower}
type FollowerNotifier struct {
	store   store.Store
	users   repository.UserRepository
	sender  push.Sender
	webBase string
	log     *zap.Logger
	now     func() time.Time
}

// NewFollowerNotifier creates a notifier. webBase is the site the click
// action points at.
func NewFollowerNotifier(st store.Store, users repository.UserRepository, sender push.Sender, webBase string, log *zap.Logger) *FollowerNotifier {
	if webBase == "" {
		webBase = defaultWebBase
	}
	return &FollowerNotifier{
		store:   st,
		users:   users,
		sender:  sender,
		webBase: webBase,
		log:     logger.OrDefault(log),
		now:     time.Now,
	}
}

// OnFollow handles a write of value at /followers/{followed}/{follower}.
// Delivery failures are logged and never returned; only store errors are.
func (n *FollowerNotifier) OnFollow(ctx context.Context, followed, follower string, value any) (*Result, error) {
	log := n.log.With(zap.String("followed", followed), zap.String("follower", follower))
	if !store.Truthy(value) {
		log.Debug("Un-follow, nothing to send")
		return &Result{Outcome: OutcomeUnfollowed}, nil
	}

	person := "/people/" + followed
	enabled, err := n.store.Read(ctx, person+"/notificationEnabled")
	if err != nil {
		return nil, fmt.Errorf("read notification setting: %w", err)
	}
	if !store.Truthy(enabled) {
		log.Debug("Notifications disabled")
		return &Result{Outcome: OutcomeDisabled}, nil
	}

	sentPath := person + "/notificationsSent/" + follower
	sent, err := n.store.Read(ctx, sentPath)
	if err != nil {
		return nil, fmt.Errorf("read sent marker: %w", err)
	}
	if store.Truthy(sent) {
		log.Debug("Notification already sent for this follower")
		return &Result{Outcome: OutcomeAlreadySent}, nil
	}

	tokens, err := n.store.Keys(ctx, person+"/notificationTokens")
	if err != nil {
		return nil, fmt.Errorf("list notification tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Debug("No notification tokens")
		return &Result{Outcome: OutcomeNoTokens}, nil
	}

	// The marker is written before sending so a retried event cannot
	// notify twice.
	if err := n.store.Write(ctx, sentPath, float64(n.now().UnixMilli())); err != nil {
		return nil, fmt.Errorf("mark notification sent: %w", err)
	}

	res := &Result{Outcome: OutcomeSent}
	results, err := n.sender.SendEach(ctx, tokens, n.notification(ctx, follower))
	if err != nil {
		log.Warn("Failed to send follower notification", zap.Error(err))
		return res, nil
	}

	var stale []string
	for _, r := range results {
		switch {
		case r.Err == nil:
			res.Delivered++
		case r.Stale():
			stale = append(stale, person+"/notificationTokens/"+r.Token)
		default:
			log.Warn("Failure sending notification", zap.String("token", r.Token), zap.Error(r.Err))
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		set, err := fanout.Plan(stale, models.OpDelete, nil)
		if err == nil {
			err = fanout.Commit(ctx, n.store, set)
		}
		if err != nil {
			log.Warn("Failed to remove unregistered tokens", zap.Error(err))
		} else {
			res.TokensRemoved = len(stale)
		}
	}
	log.Info("Follower notification sent",
		zap.Int("delivered", res.Delivered),
		zap.Int("tokens_removed", res.TokensRemoved))
	return res, nil
}

func (n *FollowerNotifier) notification(ctx context.Context, follower string) push.Notification {
	var name, photo string
	if u, err := n.users.GetUser(ctx, follower); err == nil {
		name, photo = u.DisplayName, u.PhotoURL
	} else {
		n.log.Debug("Follower account not found, using public profile", logger.WithUserID(follower), zap.Error(err))
		if v, _ := n.store.Read(ctx, "/people/"+follower+"/full_name"); v != nil {
			name, _ = v.(string)
		}
		if v, _ := n.store.Read(ctx, "/people/"+follower+"/profile_picture"); v != nil {
			photo, _ = v.(string)
		}
	}
	if name == "" {
		name = "Anonymous"
	}
	if photo == "" {
		photo = defaultIcon
	}
	return push.Notification{
		Title:       newFollowerText,
		Body:        name + " is now following you.",
		Icon:        photo,
		ClickAction: n.webBase + "/user/" + follower,
	}
}
