package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/friendlypix/internal/errors"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Post ")
	require.NoError(t, err)
	assert.Equal(t, KindPost, k)

	_, err = ParseKind("widget")
	var cfgErr *apperrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDecodePost(t *testing.T) {
	raw := map[string]any{
		"text":      "sunset #beach",
		"timestamp": float64(1700000000000),
		"author":    map[string]any{"uid": "u1", "full_name": "Ada"},
		"thumb_url": "https://cdn/thumb.jpg",
		"extra":     "kept in fields",
	}

	e, err := Decode(KindPost, "p1", raw)
	require.NoError(t, err)

	post, ok := e.Record.(*Post)
	require.True(t, ok)
	assert.Equal(t, "u1", post.Author.UID)
	assert.Equal(t, "sunset #beach", post.Text)

	uid, ok := e.Field("author.uid")
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)

	_, ok = e.Field("author.missing")
	assert.False(t, ok)
}

func TestDecodeRejectsSchemaMismatch(t *testing.T) {
	testCases := []struct {
		name string
		kind Kind
		raw  any
	}{
		{"post without author", KindPost, map[string]any{"text": "hi"}},
		{"comment as scalar", KindComment, "hello"},
		{"like as object", KindLike, map[string]any{"ts": 1}},
		{"negative like", KindLike, float64(-1)},
		{"hashtag index with strings", KindHashtagIndex, map[string]any{"p1": "yes"}},
		{"empty record", KindUser, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.kind, "x", tc.raw)
			var cfgErr *apperrors.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestWorkItemValue(t *testing.T) {
	assert.Nil(t, WorkItem{Path: "/a", Op: OpDelete, Payload: "ignored"}.Value())
	assert.Equal(t, true, WorkItem{Path: "/a", Op: OpSet, Payload: true}.Value())
	assert.Equal(t, "delete /a", WorkItem{Path: "/a", Op: OpDelete}.String())
}
