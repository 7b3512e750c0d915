package sqlstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"github.com/zfogg/friendlypix/internal/store/storetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping sqlstore tests: sqlite not available (%v)", err)
	}
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestStoreContract(t *testing.T) {
	suite.Run(t, &storetest.Suite{New: func(t *testing.T) store.Store { return New(openTestDB(t), nil) }})
}

func TestPrefixMatchingIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)

	require.NoError(t, s.Write(ctx, "/posts/Ab", map[string]any{"text": "upper"}))
	require.NoError(t, s.Write(ctx, "/posts/ab", map[string]any{"text": "lower"}))
	require.NoError(t, s.Write(ctx, "/posts/a_b", map[string]any{"text": "underscore"}))

	require.NoError(t, s.Write(ctx, "/posts/ab", nil))

	v, err := s.Read(ctx, "/posts/Ab/text")
	require.NoError(t, err)
	assert.Equal(t, "upper", v)

	keys, err := s.Keys(ctx, "/posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ab", "a_b"}, keys)
}

func TestIndexEntriesFollowDeletes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db, nil)

	require.NoError(t, s.Write(ctx, "/comments/p1/c1", map[string]any{"text": "x", "author": map[string]any{"uid": "u1"}}))
	require.NoError(t, s.Write(ctx, "/likes/p1/u1", 5))

	var count int64
	require.NoError(t, db.Model(&models.IndexEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.Update(ctx, map[string]any{"/comments/p1": nil, "/likes/p1/u1": nil}))
	require.NoError(t, db.Model(&models.IndexEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}
