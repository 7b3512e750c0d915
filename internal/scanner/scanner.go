// Package scanner resolves path templates into concrete store paths.
//
// Wildcards are resolved by listing keys or, when the template carries a
// where clause, by querying a declared index. Root bindings are read from
// the root entity. Paths are produced lazily: a consumer that stops early
// stops the store reads with it.
//
// A wildcard that is not the last one in a template ("/comments/*/*")
// turns into one scan per child of the enclosing collection. The number of
// scans is bounded by the size of that collection when the scan starts and
// is logged as the fan-out width.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/hashtags"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Filter expands one root field value into zero or more path segments
type Filter func(value string) []string

// Match is one resolved path and the template that produced it
type Match struct {
	Template pathindex.Template
	Path     string
}

// Option configures a Scanner
type Option func(*Scanner)

// WithLogger sets the scanner's logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithFilter registers or replaces a binding filter
func WithFilter(name string, f Filter) Option {
	return func(s *Scanner) { s.filters[name] = f }
}

// Scanner reads the store to resolve templates
type Scanner struct {
	store   store.Store
	log     *zap.Logger
	filters map[string]Filter
}

// New creates a Scanner over st
func New(st store.Store, opts ...Option) *Scanner {
	s := &Scanner{
		store:   st,
		filters: map[string]Filter{pathindex.FilterHashtags: hashtags.Extract},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDefault(s.log)
	return s
}

// Scan lazily yields the concrete paths template t addresses for root.
// root may be nil when the rule has no source record; templates with root
// bindings then resolve to nothing.
//
// Store failures are yielded as *errors.ScanFailure and scanning continues
// with the remaining collections.
func (s *Scanner) Scan(ctx context.Context, t pathindex.Template, root *models.Entity) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		variants, err := s.bind(t.Segments(), root)
		if err != nil {
			yield("", &apperrors.ScanFailure{Path: t.Path, Cause: err})
			return
		}
		for _, segs := range variants {
			if !s.resolve(ctx, segs, t.Where, yield) {
				return
			}
		}
	}
}

// ScanAll resolves every template. Each template is scanned independently:
// failures are collected and the other templates still resolve.
func (s *Scanner) ScanAll(ctx context.Context, templates []pathindex.Template, root *models.Entity) ([]Match, []*apperrors.ScanFailure) {
	var (
		matches  []Match
		failures []*apperrors.ScanFailure
	)
	for _, t := range templates {
		sctx, span := telemetry.TraceScan(ctx, t.Path)
		var lastErr error
		found := 0
		for p, err := range s.Scan(sctx, t, root) {
			if err != nil {
				var sf *apperrors.ScanFailure
				if !errors.As(err, &sf) {
					sf = &apperrors.ScanFailure{Path: t.Path, Cause: err}
				}
				s.log.Warn("Scan failed", logger.WithPath(sf.Path), zap.String("template", t.Path), zap.Error(sf.Cause))
				failures = append(failures, sf)
				lastErr = err
				continue
			}
			matches = append(matches, Match{Template: t, Path: p})
			found++
		}
		span.SetAttributes(attribute.Int("scan.paths", found))
		telemetry.EndSpan(span, lastErr)
	}
	return matches, failures
}

// bind substitutes root bindings, producing one segment list per
// combination of multi-valued bindings.
func (s *Scanner) bind(segs []string, root *models.Entity) ([][]string, error) {
	variants := [][]string{nil}
	for _, seg := range segs {
		values := []string{seg}
		if b, ok := pathindex.ParseBinding(seg); ok {
			var err error
			if values, err = s.bindingValues(b, root); err != nil {
				return nil, err
			}
			if len(values) == 0 {
				return nil, nil
			}
		}
		next := make([][]string, 0, len(variants)*len(values))
		for _, v := range variants {
			for _, val := range values {
				next = append(next, append(slices.Clone(v), val))
			}
		}
		variants = next
	}
	return variants, nil
}

func (s *Scanner) bindingValues(b pathindex.Binding, root *models.Entity) ([]string, error) {
	raw, ok := root.Field(b.Field)
	if !ok {
		s.log.Debug("Root binding has no value", zap.String("field", b.Field))
		return nil, nil
	}
	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		value = strconv.FormatBool(v)
	default:
		return nil, fmt.Errorf("root field %s is not a scalar", b.Field)
	}

	values := []string{value}
	if b.Filter != "" {
		f, ok := s.filters[b.Filter]
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", b.Filter)
		}
		values = f(value)
	}
	for _, v := range values {
		if err := store.ValidKey(v); err != nil {
			return nil, fmt.Errorf("root field %s: %w", b.Field, err)
		}
	}
	return values, nil
}

func (s *Scanner) resolve(ctx context.Context, segs []string, where *pathindex.Condition, yield func(string, error) bool) bool {
	last := lastWildcard(segs)
	if last < 0 {
		return yield(store.Join(segs...), nil)
	}
	suffix := segs[last+1:]
	return s.collections(ctx, segs[:last], yield, func(coll string) bool {
		keys, err := s.children(ctx, coll, where)
		if err != nil {
			return yield("", &apperrors.ScanFailure{Path: coll, Cause: err})
		}
		for _, k := range keys {
			parts := append([]string{coll, k}, suffix...)
			if !yield(store.Join(parts...), nil) {
				return false
			}
		}
		return true
	})
}

// collections calls visit with every concrete collection path prefix can
// name, listing keys for each wildcard it contains.
func (s *Scanner) collections(ctx context.Context, prefix []string, yield func(string, error) bool, visit func(string) bool) bool {
	i := slices.Index(prefix, store.Wildcard)
	if i < 0 {
		return visit(store.Join(prefix...))
	}
	parent := store.Join(prefix[:i]...)
	keys, err := s.keys(ctx, parent)
	if err != nil {
		return yield("", &apperrors.ScanFailure{Path: parent, Cause: err})
	}
	s.log.Info("Scanning nested collection",
		zap.String("collection", parent),
		zap.Int("fanout_width", len(keys)))
	metrics.RecordFanoutWidth(parent, len(keys))

	for _, k := range keys {
		next := append(append(slices.Clone(prefix[:i]), k), prefix[i+1:]...)
		if !s.collections(ctx, next, yield, visit) {
			return false
		}
	}
	return true
}

func (s *Scanner) children(ctx context.Context, coll string, where *pathindex.Condition) ([]string, error) {
	if where == nil {
		return s.keys(ctx, coll)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := store.Query{Collection: coll, Field: where.Field, Equal: where.Equals, Min: where.Min, Max: where.Max}
	kids, err := s.store.QueryByField(ctx, q)
	metrics.RecordScan("query", err)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}
	keys := make([]string, len(kids))
	for i, c := range kids {
		keys[i] = c.Key
	}
	return keys, nil
}

func (s *Scanner) keys(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.store.Keys(ctx, path)
	metrics.RecordScan("keys", err)
	return keys, err
}

func lastWildcard(segs []string) int {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == store.Wildcard {
			return i
		}
	}
	return -1
}
