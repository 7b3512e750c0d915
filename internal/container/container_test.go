package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/email"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/push"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func testIndex(t *testing.T) *pathindex.Index {
	t.Helper()
	ix, err := LoadIndex("")
	require.NoError(t, err)
	return ix
}

func TestAssembleRequiresStoreAndUsers(t *testing.T) {
	_, err := Assemble(DefaultConfig(), testIndex(t), Infra{}, nil)
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.ElementsMatch(t, []string{"tree store", "identity directory"}, initErr.MissingDeps)
}

func TestAssembleMinimal(t *testing.T) {
	ix := testIndex(t)
	infra := Infra{Store: memtree.New(ix.Indexes()), Users: repository.NewMockUserRepository()}

	c, err := Assemble(DefaultConfig(), ix, infra, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Cascade())
	assert.NotNil(t, c.Jobs())
	assert.NotNil(t, c.Filter())
	assert.NotNil(t, c.Tokens())
	assert.Nil(t, c.Guard())

	h := c.Hooks()
	require.NotNil(t, h)
	assert.Nil(t, h.Followers)
	assert.Nil(t, h.Reports)
	assert.Nil(t, h.Blurrer)
	assert.NotNil(t, h.Text)
	assert.NotNil(t, h.Admins)
}

func TestAssembleOptionalServices(t *testing.T) {
	ix := testIndex(t)
	infra := Infra{
		Store:   memtree.New(ix.Indexes()),
		Users:   repository.NewMockUserRepository(&models.User{ID: "u1"}),
		Objects: storage.NewMockObjectStore(),
		Mailer:  &email.MockMailer{},
		Push:    &push.MockSender{},
	}
	c, err := Assemble(DefaultConfig(), ix, infra, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Hooks().Followers)
	assert.NotNil(t, c.Hooks().Reports)
	// blurring needs a classifier to decide on
	assert.Nil(t, c.Hooks().Blurrer)
}

func TestAssembleRejectsBadModerationConfig(t *testing.T) {
	ix := testIndex(t)
	cfg := DefaultConfig()
	cfg.ShoutThreshold = 2
	_, err := Assemble(cfg, ix, Infra{Store: memtree.New(ix.Indexes()), Users: repository.NewMockUserRepository()}, nil)
	assert.Error(t, err)
}

func TestCleanupRunsInReverse(t *testing.T) {
	c := &Container{}
	var order []int
	for i := range 3 {
		c.OnCleanup(func(context.Context) error {
			order = append(order, i)
			if i == 1 {
				return errors.New("boom")
			}
			return nil
		})
	}
	require.NoError(t, c.Cleanup(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)

	// a second cleanup is a no-op
	require.NoError(t, c.Cleanup(context.Background()))
	assert.Len(t, order, 3)
}

func TestHealthChecksOnlyForPingableServices(t *testing.T) {
	ix := testIndex(t)
	c, err := Assemble(DefaultConfig(), ix, Infra{
		Store:   memtree.New(ix.Indexes()),
		Users:   repository.NewMockUserRepository(),
		Objects: storage.NewMockObjectStore(),
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, c.HealthChecks())
}
