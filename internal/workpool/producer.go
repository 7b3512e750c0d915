package workpool

import "context"

// Producer yields the next unit, or false once there is no more work. The
// pool calls it from a single goroutine.
type Producer func(ctx context.Context) (Unit, bool)

// FromSlice produces units in order
func FromSlice(units []Unit) Producer {
	i := 0
	return func(context.Context) (Unit, bool) {
		if i >= len(units) {
			return Unit{}, false
		}
		u := units[i]
		i++
		return u, true
	}
}

// FromChannel produces units until ch is closed or ctx is done. Units can
// keep arriving while earlier ones run.
func FromChannel(ch <-chan Unit) Producer {
	return func(ctx context.Context) (Unit, bool) {
		select {
		case u, ok := <-ch:
			return u, ok
		case <-ctx.Done():
			return Unit{}, false
		}
	}
}

// FromFunc adapts a slice of items to units through build
func FromFunc[T any](items []T, build func(T) Unit) Producer {
	units := make([]Unit, 0, len(items))
	for _, item := range items {
		units = append(units, build(item))
	}
	return FromSlice(units)
}
