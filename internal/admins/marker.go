// Package admins keeps the admin custom claim in sync with the /admins
// list in the tree.
package admins

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

const claimAdmin = "admin"

// ErrNoEmail is recorded on entries that carry no email address
var ErrNoEmail = errors.New("admin entry has no email")

// Marker grants and revokes the admin claim
type Marker struct {
	store store.Store
	users repository.UserRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewMarker creates a Marker
func NewMarker(st store.Store, users repository.UserRepository, log *zap.Logger) *Marker {
	return &Marker{store: st, users: users, log: logger.OrDefault(log), now: time.Now}
}

func entryEmail(value any) string {
	entry, _ := value.(map[string]any)
	s, _ := entry["email"].(string)
	return strings.TrimSpace(s)
}

// OnCreate grants the admin claim to the account named by the new
// /admins/{index} entry and records the outcome on the entry. The returned
// error is the one recorded, if any; only a failure to record is fatal.
func (m *Marker) OnCreate(ctx context.Context, index string, value any) error {
	path := store.Join("admins", index)
	addr := entryEmail(value)
	log := m.log.With(logger.WithPath(path), zap.String("email", addr))

	user, err := m.grant(ctx, addr)
	if err != nil {
		log.Error("Failed to mark user as an admin", zap.Error(err))
		if werr := m.store.Write(ctx, path+"/error", err.Error()); werr != nil {
			return fmt.Errorf("record admin error on %s: %w", path, werr)
		}
		return err
	}

	log.Info("User marked as an admin", logger.WithUserID(user.ID))
	return m.store.Update(ctx, map[string]any{
		path + "/email":     user.Email,
		path + "/uid":       user.ID,
		path + "/status":    "OK",
		path + "/timestamp": float64(m.now().UnixMilli()),
		path + "/error":     nil,
	})
}

func (m *Marker) grant(ctx context.Context, addr string) (*models.User, error) {
	if addr == "" {
		return nil, ErrNoEmail
	}
	user, err := m.users.GetUserByEmail(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", addr, err)
	}
	claims := maps.Clone(user.Claims)
	if claims == nil {
		claims = models.Claims{}
	}
	claims[claimAdmin] = true
	if err := m.users.SetCustomClaims(ctx, user.ID, claims); err != nil {
		return nil, fmt.Errorf("set admin claim for %s: %w", addr, err)
	}
	return user, nil
}

// OnDelete clears the admin claim of the account named by the removed
// entry. Failures are logged only.
func (m *Marker) OnDelete(ctx context.Context, index string, previous any) {
	addr := entryEmail(previous)
	log := m.log.With(logger.WithPath(store.Join("admins", index)), zap.String("email", addr))
	if addr == "" {
		log.Warn("Removed admin entry has no email")
		return
	}
	user, err := m.users.GetUserByEmail(ctx, addr)
	if err != nil {
		log.Error("Failed to un-mark admin", zap.Error(err))
		return
	}
	claims := maps.Clone(user.Claims)
	delete(claims, claimAdmin)
	if err := m.users.SetCustomClaims(ctx, user.ID, claims); err != nil {
		log.Error("Failed to un-mark admin", zap.Error(err))
		return
	}
	log.Info("User un-marked as an admin", logger.WithUserID(user.ID))
}
