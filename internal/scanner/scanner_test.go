package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func seededTree(t *testing.T) *memtree.Tree {
	t.Helper()
	tree := memtree.New(nil)
	require.NoError(t, tree.Load(map[string]any{
		"posts": map[string]any{
			"p1": map[string]any{"text": "first #Sun #sea", "timestamp": 100, "author": map[string]any{"uid": "u1"}},
			"p2": map[string]any{"text": "second", "timestamp": 200, "author": map[string]any{"uid": "u2"}},
			"p3": map[string]any{"text": "third", "timestamp": 300, "author": map[string]any{"uid": "u1"}},
		},
		"likes": map[string]any{
			"p2": map[string]any{"u1": 1, "u3": 2},
			"p3": map[string]any{"u3": 5},
		},
		"comments": map[string]any{
			"p2": map[string]any{
				"c1": map[string]any{"text": "nice", "author": map[string]any{"uid": "u1"}},
				"c2": map[string]any{"text": "meh", "author": map[string]any{"uid": "u3"}},
			},
			"p3": map[string]any{
				"c3": map[string]any{"text": "ok", "author": map[string]any{"uid": "u1"}},
			},
		},
	}))
	return tree
}

func collect(t *testing.T, s *Scanner, tmpl pathindex.Template, root *models.Entity) []string {
	t.Helper()
	var out []string
	for p, err := range s.Scan(context.Background(), tmpl, root) {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestConcretePathIsYieldedAsIs(t *testing.T) {
	s := New(seededTree(t))
	assert.Equal(t, []string{"/feed/u1"}, collect(t, s, pathindex.Template{Path: "/feed/u1"}, nil))
}

func TestWhereClauseUsesIndex(t *testing.T) {
	s := New(seededTree(t))

	posts := pathindex.Template{Path: "/posts/*", Where: &pathindex.Condition{Field: "author/uid", Equals: "u1"}}
	assert.Equal(t, []string{"/posts/p1", "/posts/p3"}, collect(t, s, posts, nil))

	likes := pathindex.Template{Path: "/likes/*/u1", Where: &pathindex.Condition{Field: "u1", Min: store.Float(0)}}
	assert.Equal(t, []string{"/likes/p2/u1"}, collect(t, s, likes, nil))
}

func TestNestedWildcardScansEachCollection(t *testing.T) {
	s := New(seededTree(t))
	comments := pathindex.Template{Path: "/comments/*/*", Where: &pathindex.Condition{Field: "author/uid", Equals: "u1"}}
	assert.Equal(t, []string{"/comments/p2/c1", "/comments/p3/c3"}, collect(t, s, comments, nil))
}

func TestWildcardWithoutWhereListsKeys(t *testing.T) {
	s := New(seededTree(t))
	assert.Equal(t, []string{"/likes/p2", "/likes/p3"}, collect(t, s, pathindex.Template{Path: "/likes/*"}, nil))
}

func TestRootBindings(t *testing.T) {
	s := New(seededTree(t))
	root := &models.Entity{ID: "p1", Kind: models.KindPost, Fields: map[string]any{
		"text":   "first #Sun #sea #sun",
		"author": map[string]any{"uid": "u1"},
	}}

	assert.Equal(t, []string{"/hashtags/sun/p1", "/hashtags/sea/p1"},
		collect(t, s, pathindex.Template{Path: "/hashtags/{root.text|hashtags}/p1"}, root))
	assert.Equal(t, []string{"/people/u1/posts/p1"},
		collect(t, s, pathindex.Template{Path: "/people/{root.author.uid}/posts/p1"}, root))

	// absent root or field addresses nothing
	assert.Empty(t, collect(t, s, pathindex.Template{Path: "/people/{root.author.uid}/posts/p1"}, nil))
	assert.Empty(t, collect(t, s, pathindex.Template{Path: "/x/{root.missing}"}, root))
}

func TestCustomFilter(t *testing.T) {
	s := New(seededTree(t), WithFilter(pathindex.FilterHashtags, func(string) []string { return []string{"a", "b"} }))
	root := &models.Entity{Fields: map[string]any{"text": "anything"}}
	assert.Equal(t, []string{"/hashtags/a/p1", "/hashtags/b/p1"},
		collect(t, s, pathindex.Template{Path: "/hashtags/{root.text|hashtags}/p1"}, root))
}

type flakyStore struct {
	store.Store
	failQuery string
	queries   int
	keys      int
}

func (f *flakyStore) QueryByField(ctx context.Context, q store.Query) ([]store.Child, error) {
	f.queries++
	if q.Collection == f.failQuery {
		return nil, errors.New("connection reset")
	}
	return f.Store.QueryByField(ctx, q)
}

func (f *flakyStore) Keys(ctx context.Context, path string) ([]string, error) {
	f.keys++
	return f.Store.Keys(ctx, path)
}

func TestScanAllIsolatesFailures(t *testing.T) {
	fs := &flakyStore{Store: seededTree(t), failQuery: "/comments/p2"}
	s := New(fs)

	templates := []pathindex.Template{
		{Path: "/feed/u1", Op: models.OpDelete},
		{Path: "/comments/*/*", Op: models.OpDelete, Where: &pathindex.Condition{Field: "author/uid", Equals: "u1"}},
		{Path: "/posts/*", Op: models.OpDelete, Where: &pathindex.Condition{Field: "author/uid", Equals: "u1"}},
	}
	matches, failures := s.ScanAll(context.Background(), templates, nil)

	var paths []string
	for _, m := range matches {
		paths = append(paths, m.Path)
	}
	assert.Equal(t, []string{"/feed/u1", "/comments/p3/c3", "/posts/p1", "/posts/p3"}, paths)
	assert.Equal(t, "/comments/*/*", matches[1].Template.Path)

	require.Len(t, failures, 1)
	assert.Equal(t, "/comments/p2", failures[0].Path)
	assert.EqualError(t, errors.Unwrap(failures[0].Cause), "connection reset")
}

func TestUndeclaredQueryFails(t *testing.T) {
	s := New(seededTree(t))
	tmpl := pathindex.Template{Path: "/posts/*", Where: &pathindex.Condition{Field: "text", Equals: "second"}}
	_, failures := s.ScanAll(context.Background(), []pathindex.Template{tmpl}, nil)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], store.ErrUndeclaredIndex)
}

func TestScanIsLazy(t *testing.T) {
	fs := &flakyStore{Store: seededTree(t)}
	s := New(fs)
	tmpl := pathindex.Template{Path: "/comments/*/*", Where: &pathindex.Condition{Field: "author/uid", Equals: "u1"}}

	for p, err := range s.Scan(context.Background(), tmpl, nil) {
		require.NoError(t, err)
		assert.Equal(t, "/comments/p2/c1", p)
		break
	}
	assert.Equal(t, 1, fs.keys)
	assert.Equal(t, 1, fs.queries)
}

func TestCancelledScanReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(seededTree(t))
	_, failures := s.ScanAll(ctx, []pathindex.Template{{Path: "/likes/*"}}, nil)
	require.Len(t, failures, 1)
	var sf *apperrors.ScanFailure
	assert.ErrorAs(t, failures[0], &sf)
	assert.ErrorIs(t, failures[0], context.Canceled)
}
