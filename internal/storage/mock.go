package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MockObjectStore is an in-memory ObjectStore for tests and local runs
type MockObjectStore struct {
	mu      sync.Mutex
	Objects map[string]*Object
	Deleted []string

	// Override hooks, nil means the default behaviour
	DeleteObjectFunc func(ctx context.Context, name string) error
	DownloadFunc     func(ctx context.Context, name string) (*Object, error)
}

// NewMockObjectStore returns an empty MockObjectStore
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{Objects: make(map[string]*Object)}
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, name string) error {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, name)
	m.Deleted = append(m.Deleted, name)
	return nil
}

func (m *MockObjectStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.Objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		delete(m.Objects, name)
	}
	m.Deleted = append(m.Deleted, names...)
	return len(names), nil
}

func (m *MockObjectStore) Download(ctx context.Context, name string) (*Object, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.Objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s does not exist", name)
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return &cp, nil
}

func (m *MockObjectStore) Upload(_ context.Context, name string, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	m.Objects[name] = &cp
	return nil
}

var (
	_ ObjectStore = (*S3Store)(nil)
	_ ObjectStore = (*MinioStore)(nil)
	_ ObjectStore = (*MockObjectStore)(nil)
)
