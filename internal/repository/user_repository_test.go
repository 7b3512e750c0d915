package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/friendlypix/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type UserRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo UserRepository
	ctx  context.Context
}

func (s *UserRepositoryTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		s.T().Skipf("Skipping repository tests: sqlite not available (%v)", err)
	}
	s.Require().NoError(db.AutoMigrate(&models.User{}))
	s.db = db
	s.repo = NewUserRepository(db)
	s.ctx = context.Background()
}

func (s *UserRepositoryTestSuite) TearDownTest() {
	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *UserRepositoryTestSuite) seed(n int) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.repo.CreateUser(s.ctx, &models.User{
			ID:          fmt.Sprintf("u%02d", i),
			Email:       fmt.Sprintf("User%02d@Example.com", i),
			DisplayName: fmt.Sprintf("User %d", i),
		}))
	}
}

func (s *UserRepositoryTestSuite) TestGetUser() {
	s.seed(1)
	u, err := s.repo.GetUser(s.ctx, "u00")
	s.Require().NoError(err)
	s.Equal("User 0", u.DisplayName)

	_, err = s.repo.GetUser(s.ctx, "missing")
	s.ErrorIs(err, ErrUserNotFound)

	u, err = s.repo.GetUserByEmail(s.ctx, " user00@example.COM ")
	s.Require().NoError(err)
	s.Equal("u00", u.ID)
}

func (s *UserRepositoryTestSuite) TestCreateUserUpserts() {
	s.seed(1)
	s.Require().NoError(s.repo.CreateUser(s.ctx, &models.User{ID: "u00", Email: "new@example.com", DisplayName: "Renamed"}))
	u, err := s.repo.GetUser(s.ctx, "u00")
	s.Require().NoError(err)
	s.Equal("Renamed", u.DisplayName)
	s.ErrorIs(s.repo.CreateUser(s.ctx, &models.User{}), ErrInvalidInput)
}

func (s *UserRepositoryTestSuite) TestListUsersPages() {
	s.seed(5)
	page, err := s.repo.ListUsers(s.ctx, 2, "")
	s.Require().NoError(err)
	s.Len(page.Users, 2)
	s.Equal("u01", page.NextPageToken)

	page, err = s.repo.ListUsers(s.ctx, 2, page.NextPageToken)
	s.Require().NoError(err)
	s.Equal("u02", page.Users[0].ID)

	page, err = s.repo.ListUsers(s.ctx, 10, "u03")
	s.Require().NoError(err)
	s.Len(page.Users, 1)
	s.Empty(page.NextPageToken)
}

func (s *UserRepositoryTestSuite) TestUsersIterator() {
	s.seed(7)
	var ids []string
	for u, err := range Users(s.ctx, s.repo, 3) {
		s.Require().NoError(err)
		ids = append(ids, u.ID)
	}
	s.Len(ids, 7)
	s.Equal("u06", ids[6])

	// early break stops paging
	count := 0
	for range Users(s.ctx, s.repo, 3) {
		count++
		if count == 2 {
			break
		}
	}
	s.Equal(2, count)
}

func (s *UserRepositoryTestSuite) TestClaimsAndSignIn() {
	s.seed(1)
	s.Require().NoError(s.repo.SetCustomClaims(s.ctx, "u00", models.Claims{"admin": true}))
	u, err := s.repo.GetUser(s.ctx, "u00")
	s.Require().NoError(err)
	s.True(u.IsAdmin())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Require().NoError(s.repo.RecordSignIn(s.ctx, "u00", at))
	u, err = s.repo.GetUser(s.ctx, "u00")
	s.Require().NoError(err)
	s.Require().NotNil(u.LastSignIn)
	s.True(at.Equal(*u.LastSignIn))

	s.ErrorIs(s.repo.SetCustomClaims(s.ctx, "nobody", models.Claims{}), ErrUserNotFound)
	s.ErrorIs(s.repo.RecordSignIn(s.ctx, "nobody", at), ErrUserNotFound)
}

func (s *UserRepositoryTestSuite) TestDeleteUserIsIdempotent() {
	s.seed(1)
	s.Require().NoError(s.repo.DeleteUser(s.ctx, "u00"))
	s.Require().NoError(s.repo.DeleteUser(s.ctx, "u00"))
	_, err := s.repo.GetUser(s.ctx, "u00")
	s.ErrorIs(err, ErrUserNotFound)

	var count int64
	s.Require().NoError(s.db.Unscoped().Model(&models.User{}).Count(&count).Error)
	s.Zero(count)
}

func TestUserRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(UserRepositoryTestSuite))
}

func TestUsersIteratorStopsOnError(t *testing.T) {
	repo := &MockUserRepository{ListUsersFunc: func(context.Context, int, string) (*Page, error) {
		return nil, assert.AnError
	}}
	var errs []error
	for u, err := range Users(context.Background(), repo, 10) {
		assert.Nil(t, u)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], assert.AnError)
}
