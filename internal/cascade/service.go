// Package cascade runs cascading deletions: it expands the rule for a root
// entity, scans the store for every dependent path, plans an idempotent
// work set and applies it through a bounded pool. The source record is
// removed last, and only once everything that references it is gone, so a
// failed run can simply be run again.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zfogg/friendlypix/internal/cache"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/fanout"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/scanner"
	"github.com/zfogg/friendlypix/internal/search"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"github.com/zfogg/friendlypix/internal/workpool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultConcurrency is the pool cap used for cascade units
const DefaultConcurrency = 3

// Coordinator coalesces concurrent runs for one root and keeps finished
// reports for inspection.
type Coordinator interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lease, error)
	PutJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, out any) (bool, error)
}

// Report is the completion report of one cascade run
type Report struct {
	JobID         string                       `json:"job_id"`
	Kind          models.Kind                  `json:"kind"`
	Event         pathindex.Event              `json:"event"`
	ID            string                       `json:"id"`
	Source        string                       `json:"source"`
	Planned       []string                     `json:"planned"`
	Succeeded     int                          `json:"succeeded"`
	Failures      []*apperrors.WorkItemFailure `json:"failures,omitempty"`
	ScanFailures  []*apperrors.ScanFailure     `json:"scan_failures,omitempty"`
	SourceRemoved bool                         `json:"source_removed"`
	Coalesced     bool                         `json:"coalesced,omitempty"`
	StartedAt     time.Time                    `json:"started_at"`
	Duration      time.Duration                `json:"duration"`
}

// Complete reports whether nothing failed
func (r *Report) Complete() bool {
	return !r.Coalesced && len(r.Failures) == 0 && len(r.ScanFailures) == 0
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithConcurrency sets the pool cap. workpool.Unbounded lifts it.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithObjectStore enables storage targets. baseURL is the CDN prefix used
// to turn stored URLs back into object names.
func WithObjectStore(objects storage.ObjectStore, baseURL string) Option {
	return func(s *Service) {
		s.objects = objects
		s.cdnBaseURL = baseURL
	}
}

// WithSearch enables search targets
func WithSearch(ix search.Indexer) Option {
	return func(s *Service) { s.search = ix }
}

// WithCoordinator enables run coalescing and report caching
func WithCoordinator(c Coordinator, leaseTTL time.Duration) Option {
	return func(s *Service) {
		s.coord = c
		s.leaseTTL = leaseTTL
	}
}

// Service runs cascades. It is safe for concurrent use.
type Service struct {
	index       *pathindex.Index
	store       store.Store
	scanner     *scanner.Scanner
	objects     storage.ObjectStore
	cdnBaseURL  string
	search      search.Indexer
	coord       Coordinator
	leaseTTL    time.Duration
	concurrency int
	log         *zap.Logger
}

// New creates a Service over st using the rules in ix
func New(ix *pathindex.Index, st store.Store, opts ...Option) (*Service, error) {
	if ix == nil || st == nil {
		return nil, apperrors.Configuration("cascade", "rule index and store are required")
	}
	s := &Service{index: ix, store: st, concurrency: DefaultConcurrency, leaseTTL: 10 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDefault(s.log)
	if s.concurrency != workpool.Unbounded && s.concurrency < 1 {
		return nil, apperrors.Configuration("cascade", "concurrency must be at least 1, got %d", s.concurrency)
	}
	s.scanner = scanner.New(st, scanner.WithLogger(s.log))
	return s, nil
}

// Index returns the rule index
func (s *Service) Index() *pathindex.Index {
	return s.index
}

// RunCascadeDelete deletes the root entity and everything derived from it
func (s *Service) RunCascadeDelete(ctx context.Context, kind models.Kind, id string) (*Report, error) {
	return s.Run(ctx, kind, pathindex.EventDelete, id)
}

// Run executes the rule for (kind, event) on id. Unit and scan failures
// are reported, not returned: the error is only set for configuration
// problems or when the store cannot be read at all.
func (s *Service) Run(ctx context.Context, kind models.Kind, event pathindex.Event, id string) (report *Report, err error) {
	exp, err := s.index.Expand(kind, event, id)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.TraceCascade(ctx, string(kind), string(event), exp.ID)
	report = &Report{
		JobID:     uuid.NewString(),
		Kind:      kind,
		Event:     event,
		ID:        exp.ID,
		Source:    store.Clean(exp.Source),
		StartedAt: time.Now().UTC(),
	}
	log := s.log.With(logger.WithKind(string(kind)), zap.String("event", string(event)),
		zap.String("root_id", exp.ID), logger.WithJobID(report.JobID))
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		if !report.Coalesced {
			metrics.RecordCascade(string(kind), string(event), len(report.Planned), report.Duration, err)
		}
		span.SetAttributes(
			attribute.Int("cascade.planned", len(report.Planned)),
			attribute.Int("cascade.failed", len(report.Failures)),
		)
		telemetry.EndSpan(span, err)
	}()

	if s.coord != nil {
		lease, lerr := s.coord.Acquire(ctx, leaseKey(kind, exp.ID), s.leaseTTL)
		switch {
		case lerr != nil:
			log.Warn("Cascade lease unavailable, running uncoordinated", zap.Error(lerr))
		case lease == nil:
			report.Coalesced = true
			metrics.RecordCascadeCoalesced(string(kind))
			log.Info("Cascade already running for this root")
			return report, nil
		default:
			defer func() {
				if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
					log.Warn("Failed to release cascade lease", zap.Error(rerr))
				}
			}()
		}
	}

	root, err := s.readRoot(ctx, kind, exp)
	if err != nil {
		return report, err
	}

	matches, scanFailures := s.scanner.ScanAll(ctx, exp.Templates, root)
	report.ScanFailures = scanFailures

	planned, err := plan(matches)
	if err != nil {
		return report, err
	}
	pending, rerr := fanout.Pending(ctx, s.store, planned)
	if rerr != nil {
		log.Warn("Could not check some planned paths, applying them anyway", zap.Error(rerr))
	}
	report.Planned = pending.Paths()

	dependents, source := splitSource(pending, report.Source)
	units := fanout.Units(s.store, dependents)
	if root != nil || len(dependents) > 0 {
		units = append(units, s.storageUnits(exp, root, log)...)
		units = append(units, s.searchUnits(exp)...)
	}

	log.Info("Cascade planned",
		zap.Int("paths", len(pending)),
		zap.Int("units", len(units)),
		zap.Int("scan_failures", len(scanFailures)))

	pool, err := workpool.New(s.concurrency, workpool.WithLogger(log))
	if err != nil {
		return report, err
	}
	poolReport, err := pool.Start(ctx, workpool.FromSlice(units))
	if poolReport != nil {
		report.Succeeded = poolReport.Succeeded
		report.Failures = poolReport.Failures
	}
	if err != nil {
		return report, err
	}

	if !report.Complete() {
		log.Warn("Cascade incomplete, keeping source for retry",
			zap.Strings("failed_units", poolReport.FailedUnits()),
			zap.Int("scan_failures", len(report.ScanFailures)))
		return report, s.saveReport(ctx, report, log)
	}
	if source != nil {
		if err := s.store.Write(ctx, source.Path, source.Value()); err != nil {
			report.Failures = append(report.Failures, &apperrors.WorkItemFailure{Unit: source.String(), Cause: err})
			log.Warn("Failed to remove cascade source", logger.WithPath(source.Path), zap.Error(err))
			return report, s.saveReport(ctx, report, log)
		}
		report.Succeeded++
	}
	report.SourceRemoved = true

	log.Info("Cascade complete", zap.Int("succeeded", report.Succeeded))
	return report, s.saveReport(ctx, report, log)
}

// LastReport returns the cached report of the most recent run for a root
func (s *Service) LastReport(ctx context.Context, kind models.Kind, id string) (*Report, bool, error) {
	if s.coord == nil {
		return nil, false, nil
	}
	var r Report
	ok, err := s.coord.GetJSON(ctx, reportKey(kind, strings.Join(store.Split(id), "/")), &r)
	if err != nil || !ok {
		return nil, false, err
	}
	return &r, true, nil
}

func (s *Service) saveReport(ctx context.Context, r *Report, log *zap.Logger) error {
	if s.coord == nil {
		return nil
	}
	if err := s.coord.PutJSON(context.WithoutCancel(ctx), reportKey(r.Kind, r.ID), r, 24*time.Hour); err != nil {
		log.Warn("Failed to cache cascade report", zap.Error(err))
	}
	return nil
}

// readRoot loads and validates the source record. A missing source is not
// an error: the cascade may already have finished.
func (s *Service) readRoot(ctx context.Context, kind models.Kind, exp *pathindex.Expansion) (*models.Entity, error) {
	raw, err := s.store.Read(ctx, exp.Source)
	if err != nil {
		return nil, fmt.Errorf("read cascade source %s: %w", exp.Source, err)
	}
	if raw == nil {
		return nil, nil
	}
	return models.Decode(kind, exp.ID, raw)
}

func plan(matches []scanner.Match) (fanout.WorkSet, error) {
	type group struct {
		t     pathindex.Template
		paths []string
	}
	var groups []*group
	byTemplate := map[string]*group{}
	for _, m := range matches {
		key := m.Template.String()
		g, ok := byTemplate[key]
		if !ok {
			g = &group{t: m.Template}
			byTemplate[key] = g
			groups = append(groups, g)
		}
		g.paths = append(g.paths, m.Path)
	}
	sets := make([]fanout.WorkSet, 0, len(groups))
	for _, g := range groups {
		set, err := fanout.Plan(g.paths, g.t.Op, g.t.Payload)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return fanout.Merge(sets...)
}

func splitSource(set fanout.WorkSet, source string) (fanout.WorkSet, *models.WorkItem) {
	out := make(fanout.WorkSet, 0, len(set))
	var src *models.WorkItem
	for _, it := range set {
		if it.Path == source {
			src = &it
			continue
		}
		out = append(out, it)
	}
	return out, src
}

func (s *Service) storageUnits(exp *pathindex.Expansion, root *models.Entity, log *zap.Logger) []workpool.Unit {
	if s.objects == nil {
		return nil
	}
	var units []workpool.Unit
	for _, target := range exp.Storage {
		ref, ok := resolveRef(target.Ref, root)
		if !ok {
			continue
		}
		if target.Prefix {
			units = append(units, workpool.Unit{
				Name: "storage prefix " + ref,
				Run: func(ctx context.Context) error {
					n, err := s.objects.DeletePrefix(ctx, ref)
					if err == nil {
						log.Debug("Removed objects", zap.String("prefix", ref), zap.Int("count", n))
					}
					return err
				},
			})
			continue
		}
		name, err := storage.ObjectName(ref, s.cdnBaseURL)
		if err != nil {
			log.Warn("Skipping unresolvable object reference", zap.String("ref", ref), zap.Error(err))
			continue
		}
		units = append(units, workpool.Unit{
			Name: "storage object " + name,
			Run: func(ctx context.Context) error {
				return s.objects.DeleteObject(ctx, name)
			},
		})
	}
	return units
}

func (s *Service) searchUnits(exp *pathindex.Expansion) []workpool.Unit {
	if s.search == nil {
		return nil
	}
	var units []workpool.Unit
	for _, target := range exp.Search {
		switch target {
		case pathindex.SearchPost:
			units = append(units, workpool.Unit{
				Name: "search post " + exp.ID,
				Run:  func(ctx context.Context) error { return s.search.DeletePost(ctx, exp.ID) },
			})
		case pathindex.SearchPostsByAuthor:
			units = append(units, workpool.Unit{
				Name: "search posts by " + exp.ID,
				Run: func(ctx context.Context) error {
					_, err := s.search.DeletePostsByAuthor(ctx, exp.ID)
					return err
				},
			})
		}
	}
	return units
}

// resolveRef substitutes a whole-string root binding. Literal refs are
// returned as is.
func resolveRef(ref string, root *models.Entity) (string, bool) {
	b, ok := pathindex.ParseBinding(ref)
	if !ok {
		return ref, ref != ""
	}
	v, ok := root.Field(b.Field)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok && str != ""
}

func leaseKey(kind models.Kind, id string) string {
	return "cascade:lease:" + string(kind) + ":" + id
}

func reportKey(kind models.Kind, id string) string {
	return "cascade:report:" + string(kind) + ":" + id
}

// IsConfigurationError reports whether err is a rule or input problem that
// retrying cannot fix.
func IsConfigurationError(err error) bool {
	var cfgErr *apperrors.ConfigurationError
	return errors.As(err, &cfgErr)
}
