package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zfogg/friendlypix/internal/models"
)

// MockUserRepository is an in-memory UserRepository. Set ListUsersFunc to
// inject listing failures.
type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User

	ListUsersFunc  func(ctx context.Context, pageSize int, pageToken string) (*Page, error)
	DeleteUserFunc func(ctx context.Context, uid string) error
}

// NewMockUserRepository seeds a mock with users
func NewMockUserRepository(users ...*models.User) *MockUserRepository {
	m := &MockUserRepository{users: map[string]*models.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepository) init() {
	if m.users == nil {
		m.users = map[string]*models.User{}
	}
}

func (m *MockUserRepository) CreateUser(_ context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MockUserRepository) GetUser(_ context.Context, uid string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) ListUsers(ctx context.Context, pageSize int, pageToken string) (*Page, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, pageSize, pageToken)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := slices.Collect(maps.Keys(m.users))
	sort.Strings(ids)

	page := &Page{}
	for _, id := range ids {
		if id <= pageToken {
			continue
		}
		if len(page.Users) == pageSize {
			page.NextPageToken = page.Users[pageSize-1].ID
			break
		}
		cp := *m.users[id]
		page.Users = append(page.Users, &cp)
	}
	return page, nil
}

func (m *MockUserRepository) SetCustomClaims(_ context.Context, uid string, claims models.Claims) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.Claims = maps.Clone(claims)
	return nil
}

func (m *MockUserRepository) RecordSignIn(_ context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	at = at.UTC()
	u.LastSignIn = &at
	return nil
}

func (m *MockUserRepository) DeleteUser(ctx context.Context, uid string) error {
	if m.DeleteUserFunc != nil {
		if err := m.DeleteUserFunc(ctx, uid); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, uid)
	return nil
}

var _ UserRepository = (*MockUserRepository)(nil)
