package store

import (
	"fmt"
	"strings"
)

// Wildcard matches exactly one path segment in an index pattern
const Wildcard = "*"

// Index declares that children of Collection may be queried by Field.
// Both are slash separated patterns in which "*" matches one segment.
type Index struct {
	Name       string `yaml:"name" json:"name"`
	Collection string `yaml:"collection" json:"collection"`
	Field      string `yaml:"field" json:"field"`
}

// IndexHit locates one indexed leaf
type IndexHit struct {
	Collection string
	ChildKey   string
	Field      string
}

// IndexSet is an immutable set of declared indexes
type IndexSet struct {
	indexes []Index
}

// NewIndexSet builds an IndexSet
func NewIndexSet(indexes ...Index) *IndexSet {
	cp := make([]Index, len(indexes))
	copy(cp, indexes)
	return &IndexSet{indexes: cp}
}

// DefaultIndexes declares the secondary keys the cascade rules query:
// posts by author and timestamp, comments by author, likes by user.
func DefaultIndexes() *IndexSet {
	return NewIndexSet(
		Index{Name: "posts_by_author", Collection: "/posts", Field: "author/uid"},
		Index{Name: "posts_by_timestamp", Collection: "/posts", Field: "timestamp"},
		Index{Name: "comments_by_author", Collection: "/comments/*", Field: "author/uid"},
		Index{Name: "likes_by_user", Collection: "/likes", Field: "*"},
	)
}

// All returns the declared indexes
func (s *IndexSet) All() []Index {
	if s == nil {
		return nil
	}
	out := make([]Index, len(s.indexes))
	copy(out, s.indexes)
	return out
}

// Covers returns the index serving q, or ErrUndeclaredIndex.
func (s *IndexSet) Covers(q Query) (Index, error) {
	if s != nil {
		coll, field := Split(q.Collection), Split(q.Field)
		for _, idx := range s.indexes {
			if matchSegments(Split(idx.Collection), coll) && matchSegments(Split(idx.Field), field) {
				return idx, nil
			}
		}
	}
	return Index{}, fmt.Errorf("%w: %s", ErrUndeclaredIndex, q)
}

// MatchLeaf returns every index position the leaf at path occupies.
func (s *IndexSet) MatchLeaf(path string) []IndexHit {
	if s == nil {
		return nil
	}
	parts := Split(path)
	var hits []IndexHit
	for _, idx := range s.indexes {
		coll, field := Split(idx.Collection), Split(idx.Field)
		if len(parts) != len(coll)+1+len(field) {
			continue
		}
		if !matchSegments(coll, parts[:len(coll)]) || !matchSegments(field, parts[len(coll)+1:]) {
			continue
		}
		hits = append(hits, IndexHit{
			Collection: "/" + strings.Join(parts[:len(coll)], "/"),
			ChildKey:   parts[len(coll)],
			Field:      strings.Join(parts[len(coll)+1:], "/"),
		})
	}
	return hits
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) != len(parts) {
		return false
	}
	for i, p := range pattern {
		if p != Wildcard && p != parts[i] {
			return false
		}
	}
	return true
}
