package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Ensure mocks implement the context ports
var (
	_ driven.ContextTarget  = (*MockContextTarget)(nil)
	_ driven.TargetRegistry = (*MockTargetRegistry)(nil)
)

// MockContextTarget records everything pushed to it
type MockContextTarget struct {
	mu       sync.Mutex
	info     domain.ContextInfo
	fallback map[string]string
	messages []domain.ContextMessage

	// NotifyErr and StoreErr are returned by the matching calls when set
	NotifyErr error
	StoreErr  error

	// PanicOnNotify makes Notify panic, simulating a misbehaving context
	PanicOnNotify bool
}

// NewMockContextTarget creates a target with the given id and url
func NewMockContextTarget(id, url string) *MockContextTarget {
	return &MockContextTarget{
		info:     domain.ContextInfo{ID: id, Kind: domain.ContextKindContent, URL: url},
		fallback: make(map[string]string),
	}
}

func (m *MockContextTarget) Info() domain.ContextInfo {
	return m.info
}

func (m *MockContextTarget) StoreFallback(ctx context.Context, key, value string) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback[key] = value
	return nil
}

func (m *MockContextTarget) Notify(ctx context.Context, msg domain.ContextMessage) error {
	if m.PanicOnNotify {
		panic("context went away")
	}
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns the frames delivered so far
func (m *MockContextTarget) Messages() []domain.ContextMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ContextMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Fallback returns the cached value for key
func (m *MockContextTarget) Fallback(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fallback[key]
	return v, ok
}

// MockTargetRegistry returns a fixed list of targets
type MockTargetRegistry struct {
	Items []driven.ContextTarget
	Err   error

	mu     sync.Mutex
	scopes []string
}

func (m *MockTargetRegistry) Targets(ctx context.Context, scope string) ([]driven.ContextTarget, error) {
	m.mu.Lock()
	m.scopes = append(m.scopes, scope)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Items, nil
}

// Scopes returns the scopes Targets was called with
func (m *MockTargetRegistry) Scopes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.scopes))
	copy(out, m.scopes)
	return out
}

// MockOptionsOpener counts Open calls
type MockOptionsOpener struct {
	mu    sync.Mutex
	calls int
	Err   error
}

func (m *MockOptionsOpener) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Err
}

// Calls returns how many times Open was called
func (m *MockOptionsOpener) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
