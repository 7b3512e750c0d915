package memtree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/store/storetest"
)

func TestTreeContract(t *testing.T) {
	suite.Run(t, &storetest.Suite{New: func(*testing.T) store.Store { return New(nil) }})
}

func TestReadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	tree := New(nil)
	require.NoError(t, tree.Load(map[string]any{"people": map[string]any{"u1": map[string]any{"full_name": "Ada"}}}))

	v, err := tree.Read(ctx, "/people/u1")
	require.NoError(t, err)
	v.(map[string]any)["full_name"] = "mutated"

	again, err := tree.Read(ctx, "/people/u1/full_name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Read(ctx, "/")
	assert.ErrorIs(t, err, context.Canceled)
}
