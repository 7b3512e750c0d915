// Package container wires the fan-out backend's collaborators and domain
// services together and owns their shutdown.
package container

import (
	"context"
	"sync"

	"github.com/zfogg/friendlypix/internal/auth"
	"github.com/zfogg/friendlypix/internal/cache"
	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/email"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/jobs"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/profiles"
	"github.com/zfogg/friendlypix/internal/push"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/search"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra holds the collaborators. Anything but Store and Users may be nil
// when the matching service is not configured.
type Infra struct {
	DB         *gorm.DB
	Cache      *cache.RedisClient
	Store      store.Store
	Users      repository.UserRepository
	Objects    storage.ObjectStore
	Search     search.Indexer
	Mailer     email.Mailer
	Push       push.Sender
	Classifier moderation.Classifier
}

// Container holds all application dependencies
type Container struct {
	cfg    *config.Config
	logger *zap.Logger
	infra  Infra

	index    *pathindex.Index
	filter   *moderation.Filter
	guard    *moderation.Guard
	cascade  *cascade.Service
	jobs     *jobs.Runner
	profiles *profiles.Publisher
	hooks    *hooks.Dispatcher
	tokens   *auth.Service

	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// Config returns the settings the container was built from
func (c *Container) Config() *config.Config { return c.cfg }

// Logger returns the logger instance
func (c *Container) Logger() *zap.Logger {
	return logger.OrDefault(c.logger)
}

func (c *Container) DB() *gorm.DB                     { return c.infra.DB }
func (c *Container) Cache() *cache.RedisClient        { return c.infra.Cache }
func (c *Container) Store() store.Store               { return c.infra.Store }
func (c *Container) Users() repository.UserRepository { return c.infra.Users }
func (c *Container) Objects() storage.ObjectStore     { return c.infra.Objects }
func (c *Container) Index() *pathindex.Index          { return c.index }
func (c *Container) Filter() *moderation.Filter       { return c.filter }
func (c *Container) Cascade() *cascade.Service        { return c.cascade }
func (c *Container) Jobs() *jobs.Runner               { return c.jobs }
func (c *Container) Profiles() *profiles.Publisher    { return c.profiles }
func (c *Container) Hooks() *hooks.Dispatcher         { return c.hooks }
func (c *Container) Tokens() *auth.Service            { return c.tokens }

// Guard returns the image guard, nil when no classifier is configured
func (c *Container) Guard() *moderation.Guard { return c.guard }

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions run last registered, first cleaned up.
func (c *Container) OnCleanup(fn func(context.Context) error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
	return c
}

// Cleanup performs graceful shutdown of all registered services
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			c.Logger().Error("Cleanup function failed", zap.Int("index", i), zap.Error(err))
		}
	}
	c.cleanupFuncs = nil
	return nil
}

// HealthChecks returns a probe for every configured collaborator that can
// be pinged
func (c *Container) HealthChecks() map[string]validation.Check {
	checks := map[string]validation.Check{}
	if c.infra.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := c.infra.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if c.infra.Cache != nil {
		checks["redis"] = c.infra.Cache.Ping
	}
	if bc, ok := c.infra.Objects.(storage.BucketChecker); ok {
		checks["storage"] = bc.CheckBucketAccess
	}
	if p, ok := c.infra.Search.(interface{ Ping(context.Context) error }); ok {
		checks["elasticsearch"] = p.Ping
	}
	return checks
}

// Validate checks that all required dependencies are registered
func (c *Container) Validate() error {
	var missing []string
	if c.infra.Store == nil {
		missing = append(missing, "tree store")
	}
	if c.infra.Users == nil {
		missing = append(missing, "identity directory")
	}
	if c.index == nil {
		missing = append(missing, "path index")
	}
	if len(missing) > 0 {
		return NewInitializationError("Missing required dependencies", missing)
	}

	optional := []struct {
		name    string
		present bool
	}{
		{"Redis lease/cache", c.infra.Cache != nil},
		{"object storage", c.infra.Objects != nil},
		{"Elasticsearch search", c.infra.Search != nil},
		{"SES mailer", c.infra.Mailer != nil},
		{"FCM push", c.infra.Push != nil},
		{"Vision classifier", c.infra.Classifier != nil},
	}
	for _, dep := range optional {
		if !dep.present {
			c.Logger().Warn("Optional dependency not configured", zap.String("dependency", dep.name))
		}
	}
	return nil
}
