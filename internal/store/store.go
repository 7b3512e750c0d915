// Package store defines the tree-shaped backing store the fan-out engine
// reads and writes: single-path reads and writes, a multi-path batch update,
// shallow key listings and queries over pre-declared secondary indexes.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUndeclaredIndex is returned for a query no declared index covers
var ErrUndeclaredIndex = errors.New("query does not match a declared index")

// Reader reads values from the tree.
type Reader interface {
	// Read returns the value at path, or nil when nothing is stored there.
	Read(ctx context.Context, path string) (any, error)
}

// Writer writes values to the tree.
type Writer interface {
	// Write replaces the value at path. A nil value deletes it.
	Write(ctx context.Context, path string, value any) error
}

// Store is the backing store contract.
type Store interface {
	Reader
	Writer

	// Update applies every path→value pair as one batch. Paths must not
	// overlap; nil values delete.
	Update(ctx context.Context, values map[string]any) error

	// Keys lists the immediate child keys of path in ascending order.
	Keys(ctx context.Context, path string) ([]string, error)

	// QueryByField returns the children of q.Collection whose q.Field
	// matches, ordered by key.
	QueryByField(ctx context.Context, q Query) ([]Child, error)

	// Indexes returns the declared index set
	Indexes() *IndexSet
}

// Child is one result of a query
type Child struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Query selects the children of Collection whose Field (a slash separated
// path relative to each child) equals Equal, or lies within [Min, Max].
type Query struct {
	Collection string   `json:"collection"`
	Field      string   `json:"field"`
	Equal      any      `json:"equal,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
}

// IsRange reports whether q selects a numeric range
func (q Query) IsRange() bool {
	return q.Min != nil || q.Max != nil
}

// Validate checks the query shape
func (q Query) Validate() error {
	if q.Field == "" {
		return fmt.Errorf("query on %s has no field", q.Collection)
	}
	if q.IsRange() && q.Equal != nil {
		return fmt.Errorf("query on %s/%s mixes equality and range", q.Collection, q.Field)
	}
	if !q.IsRange() && q.Equal == nil {
		return fmt.Errorf("query on %s/%s has no condition", q.Collection, q.Field)
	}
	return nil
}

// Matches reports whether a stored field value satisfies the query
func (q Query) Matches(v any) bool {
	if v == nil {
		return false
	}
	if q.IsRange() {
		n, ok := toFloat(v)
		if !ok {
			return false
		}
		if q.Min != nil && n < *q.Min {
			return false
		}
		if q.Max != nil && n > *q.Max {
			return false
		}
		return true
	}
	if want, ok := toFloat(q.Equal); ok {
		got, ok := toFloat(v)
		return ok && got == want
	}
	return fmt.Sprint(q.Equal) == fmt.Sprint(v)
}

func (q Query) String() string {
	switch {
	case q.IsRange():
		return fmt.Sprintf("%s[%s in %s..%s]", q.Collection, q.Field, bound(q.Min), bound(q.Max))
	default:
		return fmt.Sprintf("%s[%s == %v]", q.Collection, q.Field, q.Equal)
	}
}

func bound(f *float64) string {
	if f == nil {
		return "*"
	}
	return fmt.Sprint(*f)
}

// Float returns a pointer to f, for building range queries.
func Float(f float64) *float64 {
	return &f
}
