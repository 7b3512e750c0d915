package admins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func TestMarkerGrantsAndRevokes(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	entry := map[string]any{"email": "Ada@Example.com"}
	require.NoError(t, tree.Load(map[string]any{"admins": map[string]any{"0": entry}}))
	users := repository.NewMockUserRepository(&models.User{
		ID:     "ada",
		Email:  "ada@example.com",
		Claims: models.Claims{"beta": true},
	})
	m := NewMarker(tree, users, nil)
	m.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, m.OnCreate(ctx, "0", entry))

	u, err := users.GetUser(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
	assert.Equal(t, true, u.Claims["beta"])

	node, err := tree.Read(ctx, "/admins/0")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"email":     "ada@example.com",
		"uid":       "ada",
		"status":    "OK",
		"timestamp": float64(42),
	}, node)

	m.OnDelete(ctx, "0", entry)
	u, err = users.GetUser(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, u.IsAdmin())
	assert.Equal(t, models.Claims{"beta": true}, u.Claims)
}

func TestMarkerRecordsErrors(t *testing.T) {
	ctx := context.Background()
	tree := memtree.New(nil)
	m := NewMarker(tree, repository.NewMockUserRepository(), nil)

	err := m.OnCreate(ctx, "1", map[string]any{"email": "ghost@example.com"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	msg, rerr := tree.Read(ctx, "/admins/1/error")
	require.NoError(t, rerr)
	assert.Contains(t, msg, "ghost@example.com")

	err = m.OnCreate(ctx, "2", map[string]any{})
	assert.ErrorIs(t, err, ErrNoEmail)

	// nothing to revoke is not a failure
	m.OnDelete(ctx, "1", map[string]any{"email": "ghost@example.com"})
}
