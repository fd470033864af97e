package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Ensure MockSettingsStore implements SettingsStore
var _ driven.SettingsStore = (*MockSettingsStore)(nil)

// MockSettingsStore is an in-memory SettingsStore for testing.
// Change events are only delivered through Emit.
type MockSettingsStore struct {
	mu       sync.RWMutex
	area     domain.StorageArea
	values   map[string]json.RawMessage
	watchers map[int]func(domain.ChangeEvent)
	nextID   int

	// GetAllErr, SetAllErr and WatchErr are returned by the matching calls when set
	GetAllErr error
	SetAllErr error
	WatchErr  error

	// GetAllGate, when set, blocks GetAll until it is closed
	GetAllGate chan struct{}

	getAllCalls atomic.Int32
	setAllCalls atomic.Int32
}

// NewMockSettingsStore creates a new MockSettingsStore for the sync area
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		area:     domain.StorageAreaSync,
		values:   make(map[string]json.RawMessage),
		watchers: make(map[int]func(domain.ChangeEvent)),
	}
}

// Seed stores a value without counting it as a SetAll call
func (m *MockSettingsStore) Seed(key string, value any) {
	raw, _ := json.Marshal(value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
}

// Value returns the raw persisted value for key
func (m *MockSettingsStore) Value(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MockSettingsStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	m.getAllCalls.Add(1)

	if m.GetAllGate != nil {
		select {
		case <-m.GetAllGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.GetAllErr != nil {
		return nil, m.GetAllErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MockSettingsStore) SetAll(ctx context.Context, values map[string]json.RawMessage) error {
	m.setAllCalls.Add(1)
	if m.SetAllErr != nil {
		return m.SetAllErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MockSettingsStore) Watch(ctx context.Context, fn func(domain.ChangeEvent)) (func(), error) {
	if m.WatchErr != nil {
		return nil, m.WatchErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}, nil
}

func (m *MockSettingsStore) Area() domain.StorageArea {
	return m.area
}

func (m *MockSettingsStore) Ping(ctx context.Context) error {
	return nil
}

// Emit stores the event's new value and delivers the event to every watcher,
// as if another process had written it
func (m *MockSettingsStore) Emit(evt domain.ChangeEvent) {
	m.mu.Lock()
	if evt.Area == m.area {
		m.values[evt.Key] = evt.NewValue
	}
	watchers := make([]func(domain.ChangeEvent), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(evt)
	}
}

// WatcherCount returns the number of active subscriptions
func (m *MockSettingsStore) WatcherCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.watchers)
}

// GetAllCalls returns how many times GetAll was called
func (m *MockSettingsStore) GetAllCalls() int {
	return int(m.getAllCalls.Load())
}

// SetAllCalls returns how many times SetAll was called
func (m *MockSettingsStore) SetAllCalls() int {
	return int(m.setAllCalls.Load())
}
