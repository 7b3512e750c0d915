package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
)

func sleepingUnits(n int, d time.Duration, inFlight, peak *atomic.Int64) []Unit {
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{
			Name: fmt.Sprintf("u%02d", i),
			Run: func(ctx context.Context) error {
				cur := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(d)
				return nil
			},
		}
	}
	return units
}

func TestNeverExceedsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	report, err := Start(context.Background(), FromSlice(sleepingUnits(20, 5*time.Millisecond, &inFlight, &peak)), 3)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Processed)
	assert.Equal(t, 20, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.LessOrEqual(t, report.MaxInFlight, 3)
	assert.GreaterOrEqual(t, report.MaxInFlight, 1)
}

func TestFailureIsolation(t *testing.T) {
	units := []Unit{
		{Name: "a", Run: func(context.Context) error { return nil }},
		{Name: "b", Run: func(context.Context) error { return errors.New("store unavailable") }},
		{Name: "c", Run: func(context.Context) error { return nil }},
		{Name: "d", Run: func(context.Context) error { return nil }},
		{Name: "e", Run: func(context.Context) error { return nil }},
	}
	report, err := Start(context.Background(), FromSlice(units), 2)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 4, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].Unit)
	assert.EqualError(t, report.Failures[0].Cause, "store unavailable")
	assert.Equal(t, []string{"b"}, report.FailedUnits())
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	units := []Unit{
		{Name: "boom", Run: func(context.Context) error { panic("nil map") }},
		{Name: "ok", Run: func(context.Context) error { return nil }},
	}
	report, err := Start(context.Background(), FromSlice(units), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error(), "panic: nil map")
}

func TestEmptyProducer(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, Idle, p.State())

	report, err := p.Start(context.Background(), FromSlice(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, Done, p.State())

	_, err = p.Start(context.Background(), FromSlice(nil))
	var cfgErr *apperrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInvalidConcurrency(t *testing.T) {
	for _, c := range []int{0, -2, -100} {
		t.Run(fmt.Sprint(c), func(t *testing.T) {
			_, err := New(c)
			var cfgErr *apperrors.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestUnboundedRunsEverythingAtOnce(t *testing.T) {
	const n = 10
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})

	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{Run: func(ctx context.Context) error {
			started.Done()
			select {
			case <-release:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("never released")
			}
		}}
	}

	go func() {
		started.Wait()
		close(release)
	}()

	report, err := Start(context.Background(), FromSlice(units), Unbounded)
	require.NoError(t, err)
	assert.Equal(t, n, report.Succeeded)
	assert.Equal(t, n, report.MaxInFlight)
}

func TestFromChannelAcceptsWorkWhileRunning(t *testing.T) {
	ch := make(chan Unit)
	var ran atomic.Int64
	go func() {
		defer close(ch)
		for i := 0; i < 6; i++ {
			ch <- Unit{Name: fmt.Sprintf("late-%d", i), Run: func(context.Context) error {
				ran.Add(1)
				return nil
			}}
		}
	}()

	report, err := Start(context.Background(), FromChannel(ch), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, int64(6), ran.Load())
}

func TestCancelStopsPulling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pulled := 0
	producer := func(context.Context) (Unit, bool) {
		pulled++
		return Unit{Run: func(context.Context) error {
			cancel()
			return nil
		}}, true
	}

	report, err := Start(ctx, producer, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.LessOrEqual(t, report.Processed, 2)
	assert.Equal(t, report.Processed, pulled)
}

func TestUnnamedUnitsGetNames(t *testing.T) {
	units := []Unit{{Run: func(context.Context) error { return errors.New("x") }}}
	report, err := Start(context.Background(), FromSlice(units), 1)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "unit-0", report.Failures[0].Unit)
}
