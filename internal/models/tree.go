package models

import "time"

// TreeLeaf is one scalar of the tree store, addressed by its full path
type TreeLeaf struct {
	Path      string    `gorm:"primaryKey;type:varchar(768)" json:"path"`
	Value     string    `gorm:"type:text;not null" json:"value"` // JSON encoded scalar
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (TreeLeaf) TableName() string {
	return "tree_leaves"
}

// IndexEntry is one row of a declared secondary index: the child ChildKey of
// Collection has Field equal to StrValue or NumValue, as stored at LeafPath.
type IndexEntry struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	Collection string   `gorm:"type:varchar(512);not null;index:idx_index_lookup,priority:1" json:"collection"`
	Field      string   `gorm:"type:varchar(256);not null;index:idx_index_lookup,priority:2" json:"field"`
	StrValue   *string  `gorm:"type:text;index:idx_index_lookup,priority:3" json:"str_value,omitempty"`
	NumValue   *float64 `gorm:"index" json:"num_value,omitempty"`
	ChildKey   string   `gorm:"type:varchar(256);not null" json:"child_key"`
	LeafPath   string   `gorm:"type:varchar(768);not null;index" json:"leaf_path"`
}

// TableName specifies the table name
func (IndexEntry) TableName() string {
	return "index_entries"
}
