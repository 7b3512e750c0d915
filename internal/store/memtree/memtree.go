// Package memtree is an in-memory implementation of store.Store, used for
// local runs and tests.
package memtree

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zfogg/friendlypix/internal/store"
)

// Tree holds the whole store in one nested map guarded by a RWMutex.
type Tree struct {
	mu      sync.RWMutex
	root    map[string]any
	indexes *store.IndexSet
}

var _ store.Store = (*Tree)(nil)

// New creates an empty tree. A nil index set means store.DefaultIndexes.
func New(indexes *store.IndexSet) *Tree {
	if indexes == nil {
		indexes = store.DefaultIndexes()
	}
	return &Tree{root: map[string]any{}, indexes: indexes}
}

// Load replaces the whole tree with data
func (t *Tree) Load(data map[string]any) error {
	v, err := store.Normalize(data)
	if err != nil {
		return err
	}
	m, _ := v.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	t.mu.Lock()
	t.root = m
	t.mu.Unlock()
	return nil
}

// Indexes returns the declared index set
func (t *Tree) Indexes() *store.IndexSet {
	return t.indexes
}

// Read returns a copy of the value at path
func (t *Tree) Read(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return store.Normalize(store.Lookup(t.root, store.Split(path)))
}

// Write replaces the value at path; nil deletes it
func (t *Tree) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := store.Normalize(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(store.Split(path), v)
	return nil
}

// Update applies all values under one lock
func (t *Tree) Update(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.CheckBatch(values); err != nil {
		return err
	}
	normalized := make(map[string]any, len(values))
	for p, value := range values {
		v, err := store.Normalize(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", p, err)
		}
		normalized[p] = v
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for p, v := range normalized {
		t.set(store.Split(p), v)
	}
	return nil
}

// Keys lists the child keys of path in order
func (t *Tree) Keys(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, _ := store.Lookup(t.root, store.Split(path)).(map[string]any)
	return sortedKeys(node), nil
}

// QueryByField scans the children of the collection. The query must still
// match a declared index so that behaviour matches the SQL store.
func (t *Tree) QueryByField(ctx context.Context, q store.Query) ([]store.Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := t.indexes.Covers(q); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	coll, _ := store.Lookup(t.root, store.Split(q.Collection)).(map[string]any)
	field := store.Split(q.Field)
	var out []store.Child
	for _, key := range sortedKeys(coll) {
		child := coll[key]
		if !q.Matches(store.Lookup(child, field)) {
			continue
		}
		v, err := store.Normalize(child)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Child{Key: key, Value: v})
	}
	return out, nil
}

func (t *Tree) set(parts []string, v any) {
	if len(parts) == 0 {
		m, _ := v.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		t.root = m
		return
	}
	setAt(t.root, parts, v)
}

func setAt(node map[string]any, parts []string, v any) {
	key := parts[0]
	if len(parts) == 1 {
		if v == nil {
			delete(node, key)
		} else {
			node[key] = v
		}
		return
	}
	child, ok := node[key].(map[string]any)
	if !ok {
		if v == nil {
			return
		}
		child = map[string]any{}
		node[key] = child
	}
	setAt(child, parts[1:], v)
	if len(child) == 0 {
		delete(node, key)
	}
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
