package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStorage is an in-memory Storage for tests
type MockStorage struct {
	mu           sync.RWMutex
	playthroughs map[uuid.UUID]*Playthrough
	locks        map[uuid.UUID]string
	pingError    error
	saveError    error
}

var _ Storage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{
		playthroughs: make(map[uuid.UUID]*Playthrough),
		locks:        make(map[uuid.UUID]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes SavePlaythrough fail
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SavePlaythrough(ctx context.Context, p *Playthrough) error {
	if p == nil {
		return errors.New("playthrough cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	stored := *p
	stored.UpdatedAt = time.Now()
	m.playthroughs[p.ID] = &stored
	return nil
}

func (m *MockStorage) LoadPlaythrough(ctx context.Context, id uuid.UUID) (*Playthrough, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, exists := m.playthroughs[id]
	if !exists {
		return nil, nil
	}
	loaded := *p
	return &loaded, nil
}

func (m *MockStorage) DeletePlaythrough(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playthroughs, id)
	return nil
}

func (m *MockStorage) AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return "", ErrLocked
	}
	token := uuid.NewString()
	m.locks[id] = token
	return token, nil
}

func (m *MockStorage) ReleaseLock(ctx context.Context, id uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == token {
		delete(m.locks, id)
	}
	return nil
}

// Locked reports whether id is currently locked.
func (m *MockStorage) Locked(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, held := m.locks[id]
	return held
}
