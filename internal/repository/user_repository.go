// Package repository is the identity directory: user accounts, their
// custom claims and sign-in activity.
package repository

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/zfogg/friendlypix/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultPageSize is the page size used when ListUsers is given none
const DefaultPageSize = 1000

// Page is one page of the user listing. NextPageToken is empty on the last
// page.
type Page struct {
	Users         []*models.User
	NextPageToken string
}

// UserRepository is the identity directory collaborator
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers returns users ordered by uid, starting after pageToken.
	ListUsers(ctx context.Context, pageSize int, pageToken string) (*Page, error)
	SetCustomClaims(ctx context.Context, uid string, claims models.Claims) error
	RecordSignIn(ctx context.Context, uid string, at time.Time) error
	// DeleteUser removes the account. Deleting a missing account succeeds.
	DeleteUser(ctx context.Context, uid string) error
}

// userRepository implements UserRepository
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateUser creates a user, or updates the profile fields of an existing one
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "photo_url", "updated_at"}),
	}).Create(user).Error
}

// GetUser gets a user by uid
func (r *userRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail gets a user by email (case-insensitive)
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers pages through users by uid. The page token is the last uid of
// the previous page.
func (r *userRepository) ListUsers(ctx context.Context, pageSize int, pageToken string) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := r.db.WithContext(ctx).Order("id ASC").Limit(pageSize + 1)
	if pageToken != "" {
		q = q.Where("id > ?", pageToken)
	}
	var users []*models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	page := &Page{Users: users}
	if len(users) > pageSize {
		page.Users = users[:pageSize]
		page.NextPageToken = users[pageSize-1].ID
	}
	return page, nil
}

// SetCustomClaims replaces the claims of uid
func (r *userRepository) SetCustomClaims(ctx context.Context, uid string, claims models.Claims) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Update("claims", claims)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordSignIn stores the last sign-in time of uid
func (r *userRepository) RecordSignIn(ctx context.Context, uid string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Update("last_sign_in", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser hard-deletes uid so a re-run finds nothing to delete
func (r *userRepository) DeleteUser(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Unscoped().Where("id = ?", uid).Delete(&models.User{}).Error
}

// Users lazily walks every account, fetching one page at a time. Iteration
// stops at the first error, which is yielded with a nil user.
func Users(ctx context.Context, repo UserRepository, pageSize int) iter.Seq2[*models.User, error] {
	return func(yield func(*models.User, error) bool) {
		token := ""
		for {
			page, err := repo.ListUsers(ctx, pageSize, token)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, u := range page.Users {
				if !yield(u, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			token = page.NextPageToken
		}
	}
}
