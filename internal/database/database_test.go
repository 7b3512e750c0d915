package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/models"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{
		Environment:    "test",
		DatabaseDriver: "sqlite",
		DatabaseURL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		TracingEnabled: true,
	}
	db, err := Open(cfg)
	if err != nil {
		t.Skipf("sqlite not available: %v", err)
	}
	defer Close(db)

	require.NoError(t, Migrate(db))
	for _, table := range []any{&models.User{}, &models.TreeLeaf{}, &models.IndexEntry{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DatabaseDriver: "mysql"})
	assert.ErrorContains(t, err, "unsupported")
	assert.Error(t, Migrate(nil))
}
