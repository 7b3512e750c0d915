package search

import (
	"context"
	"sync"

	"github.com/zfogg/friendlypix/internal/models"
)

// MockIndexer records index operations in memory
type MockIndexer struct {
	mu      sync.Mutex
	Posts   map[string]*models.Post
	Deleted []string

	DeletePostFunc func(ctx context.Context, postID string) error
}

// NewMockIndexer creates an empty MockIndexer
func NewMockIndexer() *MockIndexer {
	return &MockIndexer{Posts: map[string]*models.Post{}}
}

func (m *MockIndexer) IndexPost(_ context.Context, postID string, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Posts[postID] = post
	return nil
}

func (m *MockIndexer) DeletePost(ctx context.Context, postID string) error {
	if m.DeletePostFunc != nil {
		if err := m.DeletePostFunc(ctx, postID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Posts, postID)
	m.Deleted = append(m.Deleted, "posts/"+postID)
	return nil
}

func (m *MockIndexer) DeletePostsByAuthor(_ context.Context, uid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, p := range m.Posts {
		if p.Author.UID == uid {
			delete(m.Posts, id)
			n++
		}
	}
	m.Deleted = append(m.Deleted, "author/"+uid)
	return n, nil
}

func (m *MockIndexer) DeleteProfile(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, "people/"+uid)
	return nil
}

var _ Indexer = (*MockIndexer)(nil)
