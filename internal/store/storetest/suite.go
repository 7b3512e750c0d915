// Package storetest holds the behaviour every store.Store implementation
// must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/zfogg/friendlypix/internal/store"
)

// Suite runs the shared store contract against the store built by New
type Suite struct {
	suite.Suite
	New   func(t *testing.T) store.Store
	store store.Store
	ctx   context.Context
}

// SetupTest creates a fresh store for each test
func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.New(s.T())
	s.Require().NotNil(s.store)
	s.Require().NoError(s.store.Update(s.ctx, map[string]any{
		"/posts/p1": map[string]any{
			"text":      "first #sun",
			"timestamp": 100,
			"author":    map[string]any{"uid": "u1"},
		},
		"/posts/p2": map[string]any{
			"text":      "second",
			"timestamp": 200,
			"author":    map[string]any{"uid": "u2"},
		},
		"/posts/p3": map[string]any{
			"text":      "third",
			"timestamp": 300,
			"author":    map[string]any{"uid": "u1"},
		},
		"/likes/p2/u1":           1,
		"/likes/p2/u3":           2,
		"/comments/p2/c1":        map[string]any{"text": "nice", "author": map[string]any{"uid": "u1"}},
		"/comments/p2/c2":        map[string]any{"text": "meh", "author": map[string]any{"uid": "u3"}},
		"/people/u1/full_name":   "Ada",
		"/people/u1/posts/p1":    true,
		"/people/u1/posts/p3":    true,
		"/feed/u1/p2":            true,
		"/followers/u2/u1":       "p2",
		"/hashtags/sun/p1":       true,
		"/people/u2/full_name":   "Bob",
		"/people/u3/full_name":   "Cy",
		"/people/u3/posts/other": true,
	}))
}

func (s *Suite) TestReadScalarAndSubtree() {
	v, err := s.store.Read(s.ctx, "/posts/p1/author/uid")
	s.Require().NoError(err)
	s.Equal("u1", v)

	v, err = s.store.Read(s.ctx, "/posts/p1")
	s.Require().NoError(err)
	s.Equal(map[string]any{
		"text":      "first #sun",
		"timestamp": float64(100),
		"author":    map[string]any{"uid": "u1"},
	}, v)

	v, err = s.store.Read(s.ctx, "/posts/missing")
	s.Require().NoError(err)
	s.Nil(v)
}

func (s *Suite) TestWriteReplacesAndDeletes() {
	s.Require().NoError(s.store.Write(s.ctx, "/posts/p1", map[string]any{"text": "replaced", "author": map[string]any{"uid": "u9"}}))

	v, err := s.store.Read(s.ctx, "/posts/p1/timestamp")
	s.Require().NoError(err)
	s.Nil(v, "old leaves are replaced, not merged")

	s.Require().NoError(s.store.Write(s.ctx, "/posts/p1", nil))
	v, err = s.store.Read(s.ctx, "/posts/p1")
	s.Require().NoError(err)
	s.Nil(v)

	s.Require().NoError(s.store.Write(s.ctx, "/people/u1/full_name/first", "Ada"))
	v, err = s.store.Read(s.ctx, "/people/u1/full_name")
	s.Require().NoError(err)
	s.Equal(map[string]any{"first": "Ada"}, v, "a scalar parent is replaced by the new subtree")
}

func (s *Suite) TestDeletePrunesEmptyParents() {
	s.Require().NoError(s.store.Write(s.ctx, "/feed/u1/p2", nil))
	keys, err := s.store.Keys(s.ctx, "/feed")
	s.Require().NoError(err)
	s.Empty(keys)
}

func (s *Suite) TestKeys() {
	keys, err := s.store.Keys(s.ctx, "/posts")
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p2", "p3"}, keys)

	keys, err = s.store.Keys(s.ctx, "/posts/p1/text")
	s.Require().NoError(err)
	s.Empty(keys)
}

func (s *Suite) TestUpdateRejectsOverlap() {
	err := s.store.Update(s.ctx, map[string]any{"/posts/p1": nil, "/posts/p1/text": "x"})
	s.Error(err)

	v, err := s.store.Read(s.ctx, "/posts/p1/text")
	s.Require().NoError(err)
	s.Equal("first #sun", v, "a rejected batch changes nothing")
}

func (s *Suite) TestQueryByEquality() {
	children, err := s.store.QueryByField(s.ctx, store.Query{Collection: "/posts", Field: "author/uid", Equal: "u1"})
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p3"}, keysOf(children))
	s.Equal("first #sun", children[0].Value.(map[string]any)["text"])

	children, err = s.store.QueryByField(s.ctx, store.Query{Collection: "/comments/p2", Field: "author/uid", Equal: "u3"})
	s.Require().NoError(err)
	s.Equal([]string{"c2"}, keysOf(children))
}

func (s *Suite) TestQueryByRange() {
	children, err := s.store.QueryByField(s.ctx, store.Query{Collection: "/posts", Field: "timestamp", Max: store.Float(200)})
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p2"}, keysOf(children))

	children, err = s.store.QueryByField(s.ctx, store.Query{Collection: "/likes", Field: "u1", Min: store.Float(0)})
	s.Require().NoError(err)
	s.Equal([]string{"p2"}, keysOf(children))
}

func (s *Suite) TestQueryTracksWrites() {
	s.Require().NoError(s.store.Write(s.ctx, "/posts/p2/author/uid", "u1"))
	s.Require().NoError(s.store.Write(s.ctx, "/posts/p1", nil))

	children, err := s.store.QueryByField(s.ctx, store.Query{Collection: "/posts", Field: "author/uid", Equal: "u1"})
	s.Require().NoError(err)
	s.Equal([]string{"p2", "p3"}, keysOf(children))
}

func (s *Suite) TestQueryRequiresDeclaredIndex() {
	_, err := s.store.QueryByField(s.ctx, store.Query{Collection: "/posts", Field: "text", Equal: "second"})
	s.True(errors.Is(err, store.ErrUndeclaredIndex))
}

func keysOf(children []store.Child) []string {
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, c.Key)
	}
	return out
}
