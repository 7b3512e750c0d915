// Package jobs holds the batch cleanups that cascade many roots at once:
// expiring old posts and deleting inactive accounts.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/workpool"
	"go.uber.org/zap"
)

// Job names
const (
	JobDeleteOldPosts         = "delete-old-posts"
	JobDeleteInactiveAccounts = "delete-inactive-accounts"
)

// Cascader runs one cascade
type Cascader interface {
	Run(ctx context.Context, kind models.Kind, event pathindex.Event, id string) (*cascade.Report, error)
}

// Config holds the job thresholds
type Config struct {
	PostMaxAge       time.Duration
	InactivityWindow time.Duration
	Concurrency      int
	UserPageSize     int
}

// Result summarises one job run
type Result struct {
	Job      string           `json:"job"`
	Selected int              `json:"selected"`
	Pool     *workpool.Report `json:"pool"`
}

// Runner executes the batch jobs
type Runner struct {
	store    store.Store
	users    repository.UserRepository
	cascades Cascader
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// NewRunner creates a Runner. users may be nil when only post expiry runs.
func NewRunner(st store.Store, users repository.UserRepository, c Cascader, cfg Config, log *zap.Logger) *Runner {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = cascade.DefaultConcurrency
	}
	if cfg.UserPageSize == 0 {
		cfg.UserPageSize = repository.DefaultPageSize
	}
	return &Runner{store: st, users: users, cascades: c, cfg: cfg, now: time.Now, log: logger.OrDefault(log)}
}

// DeleteOldPosts expires every post older than PostMaxAge. Post
// timestamps are milliseconds since the epoch.
func (r *Runner) DeleteOldPosts(ctx context.Context) (res *Result, err error) {
	res = &Result{Job: JobDeleteOldPosts}
	defer func() { metrics.RecordJob(JobDeleteOldPosts, res.Selected, err) }()

	cutoff := float64(r.now().Add(-r.cfg.PostMaxAge).UnixMilli())
	old, err := r.store.QueryByField(ctx, store.Query{
		Collection: "/posts",
		Field:      "timestamp",
		Max:        store.Float(cutoff),
	})
	if err != nil {
		return res, fmt.Errorf("query old posts: %w", err)
	}
	res.Selected = len(old)
	r.log.Info("Expiring old posts", zap.Int("count", len(old)), zap.Duration("max_age", r.cfg.PostMaxAge))

	producer := workpool.FromFunc(old, func(c store.Child) workpool.Unit {
		return r.cascadeUnit(models.KindPost, pathindex.EventExpire, c.Key)
	})
	res.Pool, err = workpool.Start(ctx, producer, r.cfg.Concurrency, workpool.WithLogger(r.log))
	return res, err
}

// DeleteInactiveAccounts removes users who have not signed in within the
// inactivity window: first everything they own in the tree, then, once that
// cascade is complete, the identity record. An account whose cascade fails
// stays listed and is retried on the next run. Users are listed lazily and fed to the pool while
// later pages are still loading.
func (r *Runner) DeleteInactiveAccounts(ctx context.Context) (res *Result, err error) {
	res = &Result{Job: JobDeleteInactiveAccounts}
	defer func() { metrics.RecordJob(JobDeleteInactiveAccounts, res.Selected, err) }()
	if r.users == nil {
		return res, fmt.Errorf("identity directory not configured")
	}

	cutoff := r.now().Add(-r.cfg.InactivityWindow)
	units := make(chan workpool.Unit)
	listed := make(chan error, 1)

	go func() {
		defer close(units)
		for u, err := range repository.Users(ctx, r.users, r.cfg.UserPageSize) {
			if err != nil {
				listed <- err
				return
			}
			if !u.InactiveSince(cutoff) {
				continue
			}
			res.Selected++
			select {
			case units <- r.accountUnit(u.ID):
			case <-ctx.Done():
				listed <- ctx.Err()
				return
			}
		}
		listed <- nil
	}()

	res.Pool, err = workpool.Start(ctx, workpool.FromChannel(units), r.cfg.Concurrency, workpool.WithLogger(r.log))
	// drain so the lister can exit if the pool stopped early
	for range units {
	}
	if lerr := <-listed; lerr != nil && err == nil {
		err = fmt.Errorf("list users: %w", lerr)
	}
	r.log.Info("Inactive accounts processed", zap.Int("selected", res.Selected), zap.Duration("window", r.cfg.InactivityWindow))
	return res, err
}

func (r *Runner) accountUnit(uid string) workpool.Unit {
	return workpool.Unit{
		Name: "account " + uid,
		Run: func(ctx context.Context) error {
			report, err := r.cascades.Run(ctx, models.KindUser, pathindex.EventDelete, uid)
			if err != nil {
				return err
			}
			if report.Coalesced {
				r.log.Info("Account cascade already running, keeping identity for the next run", logger.WithUserID(uid))
				return nil
			}
			if !report.Complete() {
				return fmt.Errorf("user cascade for %s incomplete: %d failed units, %d failed scans",
					uid, len(report.Failures), len(report.ScanFailures))
			}
			if err := r.users.DeleteUser(ctx, uid); err != nil {
				return fmt.Errorf("delete account %s: %w", uid, err)
			}
			r.log.Info("Deleted inactive account", logger.WithUserID(uid))
			return nil
		},
	}
}

func (r *Runner) cascadeUnit(kind models.Kind, event pathindex.Event, id string) workpool.Unit {
	return workpool.Unit{
		Name: string(kind) + " " + id,
		Run: func(ctx context.Context) error {
			report, err := r.cascades.Run(ctx, kind, event, id)
			if err != nil {
				return err
			}
			if !report.Complete() && !report.Coalesced {
				return fmt.Errorf("%s cascade for %s incomplete: %d failed units, %d failed scans",
					kind, id, len(report.Failures), len(report.ScanFailures))
			}
			return nil
		},
	}
}
