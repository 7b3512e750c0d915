package hashtags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func TestExtract(t *testing.T) {
	testCases := []struct {
		text string
		want []string
	}{
		{"sunset #Beach #beach #a-b_c", []string{"beach", "a-b_c"}},
		{"#one#two, #three!", []string{"one", "two", "three"}},
		{"no tags here", nil},
		{"# lonely hash", nil},
		{"email me@#host.com", []string{"host"}},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.text))
		})
	}
}

func TestIndexerCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	ix := NewIndexer(tree, nil)

	require.NoError(t, ix.OnPostCreated(ctx, "p1", "#sun and #sea"))
	require.NoError(t, ix.OnPostCreated(ctx, "p2", "#sun"))

	v, err := tree.Read(ctx, "/hashtags")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"sun": map[string]any{"p1": true, "p2": true},
		"sea": map[string]any{"p1": true},
	}, v)

	require.NoError(t, ix.OnPostDeleted(ctx, "p1", "#sun and #sea"))
	v, err = tree.Read(ctx, "/hashtags")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sun": map[string]any{"p2": true}}, v)
}

func TestIndexerEdit(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	ix := NewIndexer(tree, nil)

	require.NoError(t, ix.OnPostCreated(ctx, "p1", "#sun #sea"))
	require.NoError(t, ix.OnPostTextWritten(ctx, "p1", "#sun #sea", "#sun #sky"))

	v, err := tree.Read(ctx, "/hashtags")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"sun": map[string]any{"p1": true},
		"sky": map[string]any{"p1": true},
	}, v)
}

func TestIndexerRejectsBadPostID(t *testing.T) {
	ix := NewIndexer(memtree.New(nil), nil)
	assert.Error(t, ix.OnPostCreated(context.Background(), "a/b", "#x"))
}
