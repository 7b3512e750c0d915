// Package fanout turns resolved paths into a deduplicated, ordered set of
// work items and applies it to the store.
package fanout

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/workpool"
)

// WorkSet is a planned batch: unique paths in store order, no two of which
// overlap.
type WorkSet []models.WorkItem

// Paths returns the planned paths in order
func (ws WorkSet) Paths() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Path
	}
	return out
}

// Values returns the set as a store batch
func (ws WorkSet) Values() map[string]any {
	out := make(map[string]any, len(ws))
	for _, w := range ws {
		out[w.Path] = w.Value()
	}
	return out
}

// Plan builds a WorkSet applying op to every path. Duplicates are removed
// and deletes below another deleted path are folded into it. Sets on
// nested paths would overwrite each other and are a ConfigurationError.
func Plan(paths []string, op models.Op, payload any) (WorkSet, error) {
	items := make([]models.WorkItem, 0, len(paths))
	for _, p := range paths {
		items = append(items, models.WorkItem{Path: p, Op: op, Payload: payload})
	}
	return normalize(items)
}

// Merge combines sets planned from different templates. Two items touching
// the same subtree with different effects are a ConfigurationError, since
// the outcome would depend on application order.
func Merge(sets ...WorkSet) (WorkSet, error) {
	var items []models.WorkItem
	for _, s := range sets {
		items = append(items, s...)
	}
	return normalize(items)
}

func normalize(items []models.WorkItem) (WorkSet, error) {
	byPath := make(map[string]models.WorkItem, len(items))
	paths := make([]string, 0, len(items))
	for _, it := range items {
		it.Path = store.Clean(it.Path)
		if prev, ok := byPath[it.Path]; ok {
			if prev.Op != it.Op || !store.Equal(prev.Payload, it.Payload) {
				return nil, conflict(prev, it)
			}
			continue
		}
		byPath[it.Path] = it
		paths = append(paths, it.Path)
	}
	store.SortPaths(paths)

	// Sorted order puts descendants right after their ancestors, so the
	// kept items on the current branch form a stack.
	out := make(WorkSet, 0, len(paths))
	var branch []models.WorkItem
	for _, p := range paths {
		it := byPath[p]
		for len(branch) > 0 && !store.IsAncestor(branch[len(branch)-1].Path, p) {
			branch = branch[:len(branch)-1]
		}
		if len(branch) > 0 {
			top := branch[len(branch)-1]
			if top.Op == models.OpDelete && it.Op == models.OpDelete {
				continue
			}
			return nil, conflict(top, it)
		}
		branch = append(branch, it)
		out = append(out, it)
	}
	return out, nil
}

func conflict(a, b models.WorkItem) error {
	return apperrors.Configuration("fanout", "work items %q and %q overlap with different effects", a.String(), b.String())
}

// Pending drops items that are already applied: deletes of absent paths and
// sets whose value is already stored. Re-running a finished cascade plans
// nothing. An item whose current value cannot be read stays pending, since
// every write is unconditional; the read errors are joined into err while
// the returned set is still complete.
func Pending(ctx context.Context, r store.Reader, set WorkSet) (pending WorkSet, err error) {
	pending = make(WorkSet, 0, len(set))
	var unread []error
	for _, it := range set {
		cur, rerr := r.Read(ctx, it.Path)
		switch {
		case rerr != nil:
			unread = append(unread, fmt.Errorf("read %s: %w", it.Path, rerr))
			pending = append(pending, it)
		case it.Op == models.OpDelete && cur == nil:
		case it.Op == models.OpSet && store.Equal(cur, it.Payload):
		default:
			pending = append(pending, it)
		}
	}
	return pending, errors.Join(unread...)
}

// Commit applies the whole set as one batch update
func Commit(ctx context.Context, s store.Store, set WorkSet) error {
	if len(set) == 0 {
		return nil
	}
	return s.Update(ctx, set.Values())
}

// Units turns every item into its own pool unit so that one failing write
// does not block the rest.
func Units(w store.Writer, set WorkSet) []workpool.Unit {
	units := make([]workpool.Unit, 0, len(set))
	for _, it := range set {
		units = append(units, workpool.Unit{
			Name: it.String(),
			Run: func(ctx context.Context) error {
				return w.Write(ctx, it.Path, it.Value())
			},
		})
	}
	return units
}
