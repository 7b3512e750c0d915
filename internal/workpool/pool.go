// Package workpool runs independent units of fan-out work with a fixed
// upper bound on how many are in flight at once.
//
// A unit that fails or panics is recorded in the Report and never stops its
// siblings. The pool does not retry; callers re-run idempotent work instead.
package workpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Unbounded lets every pulled unit run at once
const Unbounded = -1

// State is the lifecycle of a pool
type State int32

const (
	Idle State = iota
	Running
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Unit is one independently executable piece of work
type Unit struct {
	Name string
	Run  func(ctx context.Context) error
}

// Report summarises a finished pool run
type Report struct {
	Processed   int                          `json:"processed"`
	Succeeded   int                          `json:"succeeded"`
	Failures    []*apperrors.WorkItemFailure `json:"failures,omitempty"`
	MaxInFlight int                          `json:"max_in_flight"`
	Duration    time.Duration                `json:"duration"`
}

// Failed returns the number of failed units
func (r *Report) Failed() int {
	return len(r.Failures)
}

// FailedUnits returns the names of the failed units
func (r *Report) FailedUnits() []string {
	names := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		names = append(names, f.Unit)
	}
	return names
}

// Option configures a Pool
type Option func(*Pool)

// WithLogger sets the pool's logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// Pool is a single-use bounded pool. Create one per batch of work.
type Pool struct {
	concurrency int
	log         *zap.Logger

	state       atomic.Int32
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu     sync.Mutex
	report Report
}

// New validates concurrency and returns an idle pool
func New(concurrency int, opts ...Option) (*Pool, error) {
	if concurrency != Unbounded && concurrency < 1 {
		return nil, apperrors.Configuration("workpool", "concurrency must be at least 1 or Unbounded, got %d", concurrency)
	}
	p := &Pool{concurrency: concurrency}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrDefault(p.log)
	return p, nil
}

// Start runs producer's units on a new pool and blocks until all of them
// finish.
func Start(ctx context.Context, producer Producer, concurrency int, opts ...Option) (*Report, error) {
	p, err := New(concurrency, opts...)
	if err != nil {
		return nil, err
	}
	return p.Start(ctx, producer)
}

// State returns the current lifecycle state
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Start pulls units from producer until it is exhausted, running at most
// the pool's concurrency at once, then waits for in-flight units.
//
// If ctx is cancelled the pool stops pulling, waits for in-flight units and
// returns the partial report together with ctx.Err().
func (p *Pool) Start(ctx context.Context, producer Producer) (*Report, error) {
	if !p.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return nil, apperrors.Configuration("workpool", "pool is %s, not idle", p.State())
	}
	started := time.Now()

	var g errgroup.Group
	if p.concurrency != Unbounded {
		g.SetLimit(p.concurrency)
	}

	pulled := 0
	for ctx.Err() == nil {
		unit, ok := producer(ctx)
		if !ok {
			break
		}
		if unit.Name == "" {
			unit.Name = fmt.Sprintf("unit-%d", pulled)
		}
		pulled++
		g.Go(func() error {
			p.run(ctx, unit)
			return nil
		})
	}

	p.state.Store(int32(Draining))
	_ = g.Wait()
	p.state.Store(int32(Done))

	report := p.finish(time.Since(started))
	metrics.RecordPoolMaxInFlight(int64(report.MaxInFlight))
	p.log.Debug("Work pool drained",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed()),
		zap.Int("max_in_flight", report.MaxInFlight),
		zap.Duration("duration", report.Duration))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pool) run(ctx context.Context, u Unit) {
	n := p.inFlight.Add(1)
	for {
		peak := p.maxInFlight.Load()
		if n <= peak || p.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	metrics.PoolUnitStarted()
	defer func() {
		p.inFlight.Add(-1)
		metrics.PoolUnitDone()
	}()

	err := runSafely(ctx, u)
	metrics.RecordPoolUnit(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.report.Processed++
	if err == nil {
		p.report.Succeeded++
		return
	}
	p.report.Failures = append(p.report.Failures, &apperrors.WorkItemFailure{Unit: u.Name, Cause: err})
	p.log.Warn("Work unit failed", zap.String("unit", u.Name), zap.Error(err))
}

func runSafely(ctx context.Context, u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if u.Run == nil {
		return fmt.Errorf("unit has no work")
	}
	return u.Run(ctx)
}

func (p *Pool) finish(d time.Duration) *Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.report
	r.Failures = append([]*apperrors.WorkItemFailure(nil), p.report.Failures...)
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Unit < r.Failures[j].Unit })
	r.MaxInFlight = int(p.maxInFlight.Load())
	r.Duration = d
	return &r
}
