package models

import (
	"strings"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
)

// Kind names an entity type known to the cascade rules.
type Kind string

const (
	KindPost         Kind = "post"
	KindComment      Kind = "comment"
	KindUser         Kind = "user"
	KindLike         Kind = "like"
	KindHashtagIndex Kind = "hashtag-index"
)

// Kinds lists every known kind
var Kinds = []Kind{KindPost, KindComment, KindUser, KindLike, KindHashtagIndex}

// ParseKind returns the Kind named by s, or a ConfigurationError.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", apperrors.Configuration("kind", "unknown entity kind %q", s)
}

// Entity is a record read from the tree store, tagged with its kind.
//
// IDs of nested kinds are compound: a comment is "{postId}/{commentId}",
// a like is "{postId}/{uid}".
type Entity struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Fields map[string]any `json:"fields"`

	// Record holds the typed, validated view of Fields (*Post, *Comment...)
	Record any `json:"-"`
}

// Field looks up a nested field by a dot separated path ("author.uid").
func (e *Entity) Field(path string) (any, bool) {
	if e == nil {
		return nil, false
	}
	var cur any = e.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Op is the operation of one WorkItem.
type Op string

const (
	OpDelete Op = "delete"
	OpSet    Op = "set"
)

// Valid reports whether op is a known operation
func (o Op) Valid() bool {
	return o == OpDelete || o == OpSet
}

// WorkItem is one unconditional write or delete of a single path.
type WorkItem struct {
	Path    string `json:"path"`
	Op      Op     `json:"op"`
	Payload any    `json:"payload,omitempty"`
}

// Value is what the store should hold at Path after the item is applied.
func (w WorkItem) Value() any {
	if w.Op == OpDelete {
		return nil
	}
	return w.Payload
}

func (w WorkItem) String() string {
	return string(w.Op) + " " + w.Path
}

// ModerationReason tags one alteration applied by the moderation filter.
type ModerationReason string

const (
	ReasonShouting  ModerationReason = "case-normalization"
	ReasonProfanity ModerationReason = "profanity-substitution"
	ReasonAdult     ModerationReason = "adult-classification"
	ReasonViolence  ModerationReason = "violence-classification"
)

// ModerationVerdict is the result of moderating one piece of text.
type ModerationVerdict struct {
	Text        string             `json:"text"`
	WasModified bool               `json:"was_modified"`
	Reasons     []ModerationReason `json:"reasons,omitempty"`
}
