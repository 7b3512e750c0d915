package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store/memtree"
	"github.com/zfogg/friendlypix/internal/workpool"
)

func mustPlan(t *testing.T, paths []string, op models.Op, payload any) WorkSet {
	t.Helper()
	set, err := Plan(paths, op, payload)
	require.NoError(t, err)
	return set
}

func TestPlanDedupesAndSorts(t *testing.T) {
	set := mustPlan(t, []string{"/posts/p2", "/feed/u1", "posts/p2/", "/comments/p1"}, models.OpDelete, nil)
	assert.Equal(t, []string{"/comments/p1", "/feed/u1", "/posts/p2"}, set.Paths())
	for _, it := range set {
		assert.Equal(t, models.OpDelete, it.Op)
		assert.Nil(t, it.Value())
	}
}

func TestPlanCollapsesDeletedDescendants(t *testing.T) {
	set := mustPlan(t, []string{"/likes/p1/u1", "/likes/p1", "/likes/p10/u1", "/likes/p1/u2"}, models.OpDelete, nil)
	assert.Equal(t, []string{"/likes/p1", "/likes/p10/u1"}, set.Paths())
}

func TestPlanIsDeterministic(t *testing.T) {
	a := mustPlan(t, []string{"/c", "/a", "/b/x"}, models.OpDelete, nil)
	b := mustPlan(t, []string{"/b/x", "/c", "/a"}, models.OpDelete, nil)
	assert.Equal(t, a, b)
}

func TestPlanRejectsNestedSets(t *testing.T) {
	_, err := Plan([]string{"/people/u1", "/people/u1/status"}, models.OpSet, "gone")
	var cfgErr *apperrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	set, err := Plan([]string{"/people/u1/status", "/people/u2/status"}, models.OpSet, "gone")
	require.NoError(t, err)
	assert.Len(t, set, 2)
}

func TestMergeRejectsConflicts(t *testing.T) {
	deletes := mustPlan(t, []string{"/people/u1"}, models.OpDelete, nil)

	testCases := []struct {
		name string
		set  WorkSet
	}{
		{"set below delete", mustPlan(t, []string{"/people/u1/status"}, models.OpSet, "gone")},
		{"set on same path", mustPlan(t, []string{"/people/u1"}, models.OpSet, "gone")},
		{"set above delete", mustPlan(t, []string{"/people"}, models.OpSet, map[string]any{"x": true})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Merge(deletes, tc.set)
			var cfgErr *apperrors.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMergeDisjointSets(t *testing.T) {
	set, err := Merge(
		mustPlan(t, []string{"/feed/u1", "/posts/p1"}, models.OpDelete, nil),
		mustPlan(t, []string{"/tombstones/u1"}, models.OpSet, true),
		mustPlan(t, []string{"/posts/p1/text"}, models.OpDelete, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"/feed/u1", "/posts/p1", "/tombstones/u1"}, set.Paths())
	assert.Equal(t, map[string]any{"/feed/u1": nil, "/posts/p1": nil, "/tombstones/u1": true}, set.Values())
}

func TestPendingAndCommit(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	require.NoError(t, tree.Load(map[string]any{
		"feed":  map[string]any{"u1": map[string]any{"p1": true}},
		"posts": map[string]any{"p1": map[string]any{"text": "hi"}},
		"flags": map[string]any{"u1": "done"},
	}))

	set, err := Merge(
		mustPlan(t, []string{"/feed/u1", "/posts/p1", "/posts/missing"}, models.OpDelete, nil),
		mustPlan(t, []string{"/flags/u1"}, models.OpSet, "done"),
		mustPlan(t, []string{"/flags/u2"}, models.OpSet, "done"),
	)
	require.NoError(t, err)

	pending, err := Pending(ctx, tree, set)
	require.NoError(t, err)
	assert.Equal(t, []string{"/feed/u1", "/flags/u2", "/posts/p1"}, pending.Paths())

	require.NoError(t, Commit(ctx, tree, pending))

	again, err := Pending(ctx, tree, set)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.NoError(t, Commit(ctx, tree, again))

	v, err := tree.Read(ctx, "/flags/u2")
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

type failingWriter struct {
	fail string
	done []string
}

func (w *failingWriter) Write(_ context.Context, path string, _ any) error {
	if path == w.fail {
		return errors.New("permission denied")
	}
	w.done = append(w.done, path)
	return nil
}

type unreadableReader struct {
	*memtree.Tree
	fail string
}

func (u *unreadableReader) Read(ctx context.Context, path string) (any, error) {
	if path == u.fail {
		return nil, errors.New("read timeout")
	}
	return u.Tree.Read(ctx, path)
}

func TestPendingKeepsUnreadableItems(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	require.NoError(t, tree.Load(map[string]any{"feed": map[string]any{"u1": true}}))

	set := mustPlan(t, []string{"/feed/u1", "/feed/u2", "/posts/p1"}, models.OpDelete, nil)
	pending, err := Pending(ctx, &unreadableReader{Tree: tree, fail: "/posts/p1"}, set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/posts/p1")
	assert.Equal(t, []string{"/feed/u1", "/posts/p1"}, pending.Paths())
}

func TestUnitsIsolateFailures(t *testing.T) {
	set := mustPlan(t, []string{"/a", "/b", "/c"}, models.OpDelete, nil)
	w := &failingWriter{fail: "/b"}

	report, err := workpool.Start(context.Background(), workpool.FromSlice(Units(w, set)), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, []string{"delete /b"}, report.FailedUnits())
	assert.Equal(t, []string{"/a", "/c"}, w.done)
}
