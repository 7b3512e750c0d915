// Package sqlstore implements store.Store on a relational database through
// gorm. Every scalar of the tree is one row of tree_leaves; declared
// secondary indexes are maintained in index_entries on each write.
package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const insertBatchSize = 200

// Store is a gorm backed tree store
type Store struct {
	db      *gorm.DB
	indexes *store.IndexSet
}

var _ store.Store = (*Store)(nil)

// New wraps db. A nil index set means store.DefaultIndexes.
func New(db *gorm.DB, indexes *store.IndexSet) *Store {
	if indexes == nil {
		indexes = store.DefaultIndexes()
	}
	return &Store{db: db, indexes: indexes}
}

// Migrate creates the tree tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.TreeLeaf{}, &models.IndexEntry{})
}

// Indexes returns the declared index set
func (s *Store) Indexes() *store.IndexSet {
	return s.indexes
}

// Read rebuilds the subtree at path from its leaves
func (s *Store) Read(ctx context.Context, path string) (any, error) {
	return read(s.db.WithContext(ctx), store.Clean(path))
}

func read(db *gorm.DB, p string) (any, error) {
	var leaves []models.TreeLeaf
	if err := underPath(db, "path", p).Find(&leaves).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if len(leaves) == 0 {
		return nil, nil
	}

	base := len(store.Split(p))
	root := map[string]any{}
	for _, leaf := range leaves {
		var v any
		if err := json.UnmarshalFromString(leaf.Value, &v); err != nil {
			return nil, fmt.Errorf("decode leaf %s: %w", leaf.Path, err)
		}
		if leaf.Path == p {
			return v, nil
		}
		place(root, store.Split(leaf.Path)[base:], v)
	}
	return root, nil
}

func place(node map[string]any, parts []string, v any) {
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = v
}

// Write replaces the value at path inside a transaction
func (s *Store) Write(ctx context.Context, path string, value any) error {
	v, err := store.Normalize(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.write(tx, store.Clean(path), v)
	})
}

// Update applies all values in a single transaction
func (s *Store) Update(ctx context.Context, values map[string]any) error {
	if err := store.CheckBatch(values); err != nil {
		return err
	}
	normalized := make(map[string]any, len(values))
	for p, value := range values {
		v, err := store.Normalize(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", p, err)
		}
		normalized[store.Clean(p)] = v
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for p, v := range normalized {
			if err := s.write(tx, p, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) write(tx *gorm.DB, p string, v any) error {
	if err := underPath(tx, "path", p).Delete(&models.TreeLeaf{}).Error; err != nil {
		return fmt.Errorf("clear %s: %w", p, err)
	}
	if err := underPath(tx, "leaf_path", p).Delete(&models.IndexEntry{}).Error; err != nil {
		return fmt.Errorf("clear index entries under %s: %w", p, err)
	}

	if v == nil {
		return nil
	}

	// A scalar stored at an ancestor is replaced by the new subtree
	if anc := ancestors(p); len(anc) > 0 {
		if err := tx.Where("path IN ?", anc).Delete(&models.TreeLeaf{}).Error; err != nil {
			return fmt.Errorf("clear ancestors of %s: %w", p, err)
		}
		if err := tx.Where("leaf_path IN ?", anc).Delete(&models.IndexEntry{}).Error; err != nil {
			return fmt.Errorf("clear ancestor index entries of %s: %w", p, err)
		}
	}

	flat := store.Flatten(p, v)
	leaves := make([]models.TreeLeaf, 0, len(flat))
	var entries []models.IndexEntry
	for leafPath, scalar := range flat {
		encoded, err := json.MarshalToString(scalar)
		if err != nil {
			return fmt.Errorf("encode leaf %s: %w", leafPath, err)
		}
		leaves = append(leaves, models.TreeLeaf{Path: leafPath, Value: encoded})
		for _, hit := range s.indexes.MatchLeaf(leafPath) {
			entries = append(entries, indexEntry(hit, leafPath, scalar))
		}
	}

	if err := tx.CreateInBatches(&leaves, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert leaves under %s: %w", p, err)
	}
	if len(entries) > 0 {
		if err := tx.CreateInBatches(&entries, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert index entries under %s: %w", p, err)
		}
	}
	return nil
}

func indexEntry(hit store.IndexHit, leafPath string, scalar any) models.IndexEntry {
	e := models.IndexEntry{
		Collection: hit.Collection,
		Field:      hit.Field,
		ChildKey:   hit.ChildKey,
		LeafPath:   leafPath,
	}
	switch v := scalar.(type) {
	case float64:
		e.NumValue = &v
	default:
		str := fmt.Sprint(v)
		e.StrValue = &str
	}
	return e
}

// Keys lists the distinct child segments below path
func (s *Store) Keys(ctx context.Context, path string) ([]string, error) {
	p := store.Clean(path)
	var paths []string
	err := below(s.db.WithContext(ctx).Model(&models.TreeLeaf{}), "path", p).
		Pluck("path", &paths).Error
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", p, err)
	}

	depth := len(store.Split(p))
	seen := make(map[string]struct{})
	var keys []string
	for _, leaf := range paths {
		parts := store.Split(leaf)
		if len(parts) <= depth {
			continue
		}
		if _, ok := seen[parts[depth]]; ok {
			continue
		}
		seen[parts[depth]] = struct{}{}
		keys = append(keys, parts[depth])
	}
	sort.Strings(keys)
	return keys, nil
}

// QueryByField looks matching children up in index_entries and reads each
func (s *Store) QueryByField(ctx context.Context, q store.Query) ([]store.Child, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.indexes.Covers(q); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&models.IndexEntry{}).
		Where("collection = ? AND field = ?", store.Clean(q.Collection), strings.Trim(q.Field, "/"))

	switch {
	case q.IsRange():
		if q.Min != nil {
			query = query.Where("num_value >= ?", *q.Min)
		}
		if q.Max != nil {
			query = query.Where("num_value <= ?", *q.Max)
		}
	default:
		if n, ok := q.Equal.(float64); ok {
			query = query.Where("num_value = ?", n)
		} else if n, ok := q.Equal.(int); ok {
			query = query.Where("num_value = ?", float64(n))
		} else {
			query = query.Where("str_value = ?", fmt.Sprint(q.Equal))
		}
	}

	var keys []string
	if err := query.Distinct("child_key").Order("child_key").Pluck("child_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}

	out := make([]store.Child, 0, len(keys))
	for _, key := range keys {
		v, err := read(db, store.Join(q.Collection, key))
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		out = append(out, store.Child{Key: key, Value: v})
	}
	return out, nil
}

// underPath selects rows whose column equals p or lies below it
func underPath(db *gorm.DB, column, p string) *gorm.DB {
	if p == "/" {
		return db.Where("1 = 1")
	}
	prefix := p + "/"
	// LIKE narrows the scan; substr keeps the match case-sensitive on
	// sqlite, where LIKE folds ASCII case.
	return db.Where(
		column+" = ? OR ("+column+" LIKE ? ESCAPE '\\' AND substr("+column+", 1, ?) = ?)",
		p, likePattern(prefix), utf8.RuneCountInString(prefix), prefix,
	)
}

// below selects rows strictly below p
func below(db *gorm.DB, column, p string) *gorm.DB {
	if p == "/" {
		return db
	}
	prefix := p + "/"
	return db.Where(
		column+" LIKE ? ESCAPE '\\' AND substr("+column+", 1, ?) = ?",
		likePattern(prefix), utf8.RuneCountInString(prefix), prefix,
	)
}

func likePattern(prefix string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
}

func ancestors(p string) []string {
	parts := store.Split(p)
	out := make([]string, 0, len(parts))
	for i := 1; i < len(parts); i++ {
		out = append(out, "/"+strings.Join(parts[:i], "/"))
	}
	return out
}
