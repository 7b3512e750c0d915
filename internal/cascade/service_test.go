package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/cache"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/search"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func fixture() map[string]any {
	return map[string]any{
		"people": map[string]any{
			"u1": map[string]any{"full_name": "Ann", "posts": map[string]any{"p1": true, "p3": true, "p4": true}},
			"u2": map[string]any{"full_name": "Bob", "posts": map[string]any{"p2": true}},
		},
		"feed":      map[string]any{"u1": map[string]any{"p2": true}, "u2": map[string]any{"p1": true}},
		"followers": map[string]any{"u1": map[string]any{"u2": true}},
		"posts": map[string]any{
			"p1": map[string]any{"text": "beach #sun", "timestamp": 100, "author": map[string]any{"uid": "u1"},
				"full_storage_uri": "gs://pix/u1/full/p1/a.jpg", "thumb_storage_uri": "gs://pix/u1/thumb/p1/a.jpg"},
			"p2": map[string]any{"text": "hello", "timestamp": 200, "author": map[string]any{"uid": "u2"}},
			"p3": map[string]any{"text": "night", "timestamp": 300, "author": map[string]any{"uid": "u1"}},
			"p4": map[string]any{"text": "rain", "timestamp": 400, "author": map[string]any{"uid": "u1"}},
		},
		"likes": map[string]any{
			"p1": map[string]any{"u2": 10},
			"p2": map[string]any{"u1": 11},
			"p3": map[string]any{"u1": 12},
		},
		"comments": map[string]any{
			"p1": map[string]any{"c9": map[string]any{"text": "wow", "author": map[string]any{"uid": "u2"}}},
			"p2": map[string]any{
				"c1": map[string]any{"text": "nice", "author": map[string]any{"uid": "u1"}},
				"c2": map[string]any{"text": "meh", "author": map[string]any{"uid": "u2"}},
			},
		},
		"hashtags": map[string]any{"sun": map[string]any{"p1": true}},
	}
}

func newTree(t *testing.T, ix *pathindex.Index) *memtree.Tree {
	t.Helper()
	tree := memtree.New(ix.Indexes())
	require.NoError(t, tree.Load(fixture()))
	return tree
}

func defaultIndex(t *testing.T) *pathindex.Index {
	t.Helper()
	ix, err := pathindex.Default()
	require.NoError(t, err)
	return ix
}

func read(t *testing.T, st store.Store, path string) any {
	t.Helper()
	v, err := st.Read(context.Background(), path)
	require.NoError(t, err)
	return v
}

func TestUserCascadeCoversExactlyItsPaths(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)
	objects := storage.NewMockObjectStore()
	for _, name := range []string{"u1/full/p1/a.jpg", "u1/thumb/p1/a.jpg", "u2/full/p2/b.jpg"} {
		require.NoError(t, objects.Upload(context.Background(), name, &storage.Object{Data: []byte("x")}))
	}
	idx := search.NewMockIndexer()
	require.NoError(t, idx.IndexPost(context.Background(), "p1", &models.Post{Author: models.Author{UID: "u1"}}))
	require.NoError(t, idx.IndexPost(context.Background(), "p2", &models.Post{Author: models.Author{UID: "u2"}}))

	svc, err := New(ix, tree, WithObjectStore(objects, ""), WithSearch(idx))
	require.NoError(t, err)

	report, err := svc.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.True(t, report.SourceRemoved)
	assert.ElementsMatch(t, []string{
		"/feed/u1",
		"/followers/u1",
		"/people/u1",
		"/posts/p1", "/posts/p3", "/posts/p4",
		"/likes/p2/u1", "/likes/p3/u1",
		"/comments/p2/c1",
	}, report.Planned)

	assert.Nil(t, read(t, tree, "/people/u1"))
	assert.Nil(t, read(t, tree, "/comments/p2/c1"))
	assert.NotNil(t, read(t, tree, "/comments/p2/c2"))
	assert.NotNil(t, read(t, tree, "/posts/p2"))
	assert.NotNil(t, read(t, tree, "/likes/p1/u2"))

	assert.ElementsMatch(t, []string{"u1/full/p1/a.jpg", "u1/thumb/p1/a.jpg"}, objects.Deleted)
	assert.Contains(t, objects.Objects, "u2/full/p2/b.jpg")
	assert.Contains(t, idx.Posts, "p2")
	assert.NotContains(t, idx.Posts, "p1")

	again, err := svc.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.Empty(t, again.Planned)
	assert.Zero(t, again.Succeeded)
	assert.True(t, again.Complete())
}

func TestPostCascadeUsesRootBindings(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)
	require.NoError(t, tree.Update(context.Background(), map[string]any{
		"/people/u1/posts/p1": true,
		"/feed/u1/p1":         true,
	}))
	objects := storage.NewMockObjectStore()
	idx := search.NewMockIndexer()

	svc, err := New(ix, tree, WithObjectStore(objects, ""), WithSearch(idx))
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), models.KindPost, pathindex.EventExpire, "p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/people/u1/posts/p1",
		"/feed/u1/p1",
		"/hashtags/sun/p1",
		"/comments/p1",
		"/likes/p1",
		"/posts/p1",
	}, report.Planned)
	assert.ElementsMatch(t, []string{"u1/full/p1/a.jpg", "u1/thumb/p1/a.jpg"}, objects.Deleted)
	assert.Equal(t, []string{"posts/p1"}, idx.Deleted)
	assert.Nil(t, read(t, tree, "/hashtags/sun"))
	assert.NotNil(t, read(t, tree, "/feed/u2/p1"), "other users' feeds are left to their own cleanup")
}

func TestCommentCascadeWithCompoundID(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)
	svc, err := New(ix, tree)
	require.NoError(t, err)

	report, err := svc.RunCascadeDelete(context.Background(), models.KindComment, "p2/c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/comments/p2/c1"}, report.Planned)
	assert.NotNil(t, read(t, tree, "/comments/p2/c2"))
}

type failingStore struct {
	store.Store
	failPath string
}

func (f *failingStore) Write(ctx context.Context, path string, value any) error {
	if path == f.failPath {
		return errors.New("permission denied")
	}
	return f.Store.Write(ctx, path, value)
}

func TestFailedUnitKeepsSourceForRetry(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)

	flaky, err := New(ix, &failingStore{Store: tree, failPath: "/posts/p3"})
	require.NoError(t, err)
	report, err := flaky.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.False(t, report.Complete())
	assert.False(t, report.SourceRemoved)
	assert.Equal(t, 7, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "delete /posts/p3", report.Failures[0].Unit)
	assert.NotNil(t, read(t, tree, "/people/u1"))

	healthy, err := New(ix, tree)
	require.NoError(t, err)
	retry, err := healthy.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/posts/p3", "/people/u1"}, retry.Planned)
	assert.True(t, retry.SourceRemoved)
}

type unreadableStore struct {
	store.Store
	failPath string
}

func (u *unreadableStore) Read(ctx context.Context, path string) (any, error) {
	if path == u.failPath {
		return nil, errors.New("transient read timeout")
	}
	return u.Store.Read(ctx, path)
}

func TestUnreadablePathIsStillApplied(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)

	svc, err := New(ix, &unreadableStore{Store: tree, failPath: "/likes/p3/u1"})
	require.NoError(t, err)
	report, err := svc.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.True(t, report.SourceRemoved)
	assert.Len(t, report.Planned, 9)
	assert.Contains(t, report.Planned, "/likes/p3/u1")

	for _, p := range []string{"/posts/p1", "/feed/u1", "/comments/p2/c1", "/likes/p3/u1", "/people/u1"} {
		assert.Nil(t, read(t, tree, p), p)
	}
}

func TestConfigurationErrors(t *testing.T) {
	ix := defaultIndex(t)
	tree := newTree(t, ix)
	svc, err := New(ix, tree)
	require.NoError(t, err)

	_, err = svc.RunCascadeDelete(context.Background(), models.Kind("album"), "a1")
	assert.True(t, IsConfigurationError(err))

	_, err = svc.RunCascadeDelete(context.Background(), models.KindUser, "u1/*")
	assert.True(t, IsConfigurationError(err))

	require.NoError(t, tree.Write(context.Background(), "/posts/bad", "not a post"))
	_, err = svc.RunCascadeDelete(context.Background(), models.KindPost, "bad")
	assert.True(t, IsConfigurationError(err))
	assert.NotNil(t, read(t, tree, "/posts/bad"), "nothing is written when the source does not decode")

	_, err = New(ix, tree, WithConcurrency(0))
	assert.True(t, IsConfigurationError(err))
}

func TestConcurrentRunsAreCoalesced(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ix := defaultIndex(t)
	tree := newTree(t, ix)

	svc, err := New(ix, tree, WithCoordinator(rc, time.Minute))
	require.NoError(t, err)

	held, err := rc.Acquire(context.Background(), leaseKey(models.KindUser, "u1"), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	report, err := svc.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.True(t, report.Coalesced)
	assert.NotNil(t, read(t, tree, "/people/u1"))

	require.NoError(t, held.Release(context.Background()))
	report, err = svc.RunCascadeDelete(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	assert.True(t, report.SourceRemoved)

	cached, ok, err := svc.LastReport(context.Background(), models.KindUser, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.JobID, cached.JobID)
	assert.Len(t, cached.Planned, 9)
}
