package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Ensure SettingsManager implements SettingsService
var _ driving.SettingsService = (*SettingsManager)(nil)

// defaultLoadTimeout bounds the initial load from the store
const defaultLoadTimeout = 10 * time.Second

// SettingsManager owns the cached settings snapshot for this process.
//
// Reads are served from the cache and never touch the store. Mutations are
// serialized: each one clones the cache, applies its change, persists the
// result and only then swaps it in, so a failed write leaves the cache as it was.
// Change feed events are applied under the same lock as mutations.
//
// Broadcasts are handed to a single goroutine that always sends the newest
// committed snapshot, so a slow target never delays the next mutation.
type SettingsManager struct {
	store       driven.SettingsStore
	broadcaster driving.Broadcaster
	defaults    func() *domain.Settings
	logger      *slog.Logger
	loadTimeout time.Duration

	mu       sync.RWMutex
	settings *domain.Settings

	// writeMu serializes read-modify-write cycles and change feed updates
	writeMu sync.Mutex

	broadcastMu   sync.Mutex
	pending       *domain.Settings
	broadcastWake chan struct{}
	broadcastDone chan struct{}
	closed        chan struct{}
	closeOnce     sync.Once

	initGroup   singleflight.Group
	initialized atomic.Bool
	stopWatch   func()

	listenersMu    sync.Mutex
	listeners      []listenerEntry
	nextListenerID driving.ListenerID
}

type listenerEntry struct {
	id driving.ListenerID
	fn driving.SettingsListener
}

// SettingsManagerConfig holds dependencies for the settings manager.
type SettingsManagerConfig struct {
	Store       driven.SettingsStore
	Broadcaster driving.Broadcaster // optional
	Defaults    func() *domain.Settings
	Logger      *slog.Logger
	LoadTimeout time.Duration
}

// NewSettingsManager creates a settings manager holding defaults until Initialize runs.
func NewSettingsManager(cfg SettingsManagerConfig) *SettingsManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = domain.DefaultSettings
	}

	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}

	m := &SettingsManager{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		defaults:    defaults,
		logger:      logger.With("component", "settings", "area", string(cfg.Store.Area())),
		loadTimeout: loadTimeout,
		settings:    defaults(),
		closed:      make(chan struct{}),
	}

	if m.broadcaster != nil {
		m.broadcastWake = make(chan struct{}, 1)
		m.broadcastDone = make(chan struct{})
		go m.runBroadcasts()
	}
	return m
}

// Initialize loads persisted settings over defaults and subscribes to the
// store's change feed. Concurrent callers wait on the same in-flight load.
func (m *SettingsManager) Initialize(ctx context.Context) error {
	if m.initialized.Load() {
		return nil
	}

	ch := m.initGroup.DoChan("initialize", func() (any, error) {
		if m.initialized.Load() {
			return nil, nil
		}

		// The load outlives the first caller so a cancelled request cannot
		// leave every other waiter with defaults.
		bg := context.WithoutCancel(ctx)
		m.load(bg)
		m.watch(bg)

		m.initialized.Store(true)
		m.logger.Info("settings initialized")
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initialized reports whether Initialize has completed
func (m *SettingsManager) Initialized() bool {
	return m.initialized.Load()
}

// load reads the store and merges it over defaults.
// A failed read keeps defaults; settings must stay available without a store.
func (m *SettingsManager) load(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.loadTimeout)
	defer cancel()

	record, err := m.store.GetAll(ctx)
	if err != nil {
		m.logger.Error("failed to load settings, using defaults", "error", err)
		return
	}

	settings, err := domain.SettingsFromRecord(m.defaults(), record)
	if err != nil {
		m.logger.Warn("ignoring invalid persisted settings", "error", err)
	}

	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()
}

func (m *SettingsManager) watch(ctx context.Context) {
	stop, err := m.store.Watch(ctx, m.handleChange)
	if err != nil {
		m.logger.Warn("failed to subscribe to settings changes", "error", err)
		return
	}

	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()
}

// handleChange patches the cache from a change feed event. Stores do not
// report this process's own writes, so every applied event is external.
func (m *SettingsManager) handleChange(evt domain.ChangeEvent) {
	if evt.Area != m.store.Area() {
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	next := m.settings.Clone()
	if err := next.ApplyField(evt.Key, evt.NewValue); err != nil {
		m.mu.Unlock()
		m.logger.Debug("ignoring settings change", "key", evt.Key, "error", err)
		return
	}
	next.Normalize()

	if reflect.DeepEqual(next, m.settings) {
		m.mu.Unlock()
		return
	}
	m.settings = next
	snapshot := *next.Clone()
	m.mu.Unlock()

	m.logger.Debug("settings changed externally", "key", evt.Key)
	m.notifyListeners(snapshot)
}

// Get returns one field by persisted name
func (m *SettingsManager) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.Field(key)
}

// GetAll returns a copy of the full snapshot
func (m *SettingsManager) GetAll() domain.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.settings.Clone()
}

// GetAPIKeys returns a copy of the ordered key list
func (m *SettingsManager) GetAPIKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.settings.APIKeys))
	copy(keys, m.settings.APIKeys)
	return keys
}

// GetCurrentAPIKey returns the active key or "" when none is configured
func (m *SettingsManager) GetCurrentAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, _ := m.settings.CurrentAPIKey()
	return key
}

// RotateToNextAPIKey advances the active key, wrapping around
func (m *SettingsManager) RotateToNextAPIKey(ctx context.Context) (string, error) {
	var rotated string
	err := m.commit(ctx, func(s *domain.Settings) error {
		next, ok := s.NextAPIKeyIndex()
		if !ok {
			return domain.ErrNoAPIKeys
		}
		s.CurrentAPIKeyIndex = &next
		rotated = s.APIKeys[next]
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("rotated api key", "index", m.currentIndex())
	return rotated, nil
}

// SaveToStorage merges patch into the snapshot and persists it
func (m *SettingsManager) SaveToStorage(ctx context.Context, patch *domain.SettingsPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return m.commit(ctx, func(s *domain.Settings) error {
		patch.Apply(s)
		return nil
	})
}

// Set saves a single field
func (m *SettingsManager) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := domain.ValidateField(key, value); err != nil {
		return err
	}
	return m.commit(ctx, func(s *domain.Settings) error {
		return s.ApplyField(key, value)
	})
}

// ResetToDefaults replaces the snapshot with defaults and persists it
func (m *SettingsManager) ResetToDefaults(ctx context.Context) error {
	return m.commit(ctx, func(s *domain.Settings) error {
		*s = *m.defaults()
		return nil
	})
}

// commit runs one read-modify-write cycle: mutate a copy, persist it, swap it
// in, notify listeners and queue a broadcast.
func (m *SettingsManager) commit(ctx context.Context, mutate func(*domain.Settings) error) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	next := m.settings.Clone()
	m.mu.RUnlock()

	if err := mutate(next); err != nil {
		return err
	}
	next.Normalize()

	record, err := next.Record()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := m.store.SetAll(ctx, record); err != nil {
		m.logger.Error("failed to save settings", "error", err)
		return fmt.Errorf("save settings: %w", err)
	}

	m.mu.Lock()
	m.settings = next
	m.mu.Unlock()

	snapshot := *next.Clone()
	m.notifyListeners(snapshot)
	m.queueBroadcast(snapshot)
	return nil
}

// queueBroadcast replaces any snapshot still waiting to go out. Queued under
// writeMu, so the newest pending snapshot is always the newest commit.
func (m *SettingsManager) queueBroadcast(settings domain.Settings) {
	if m.broadcaster == nil {
		return
	}

	m.broadcastMu.Lock()
	m.pending = &settings
	m.broadcastMu.Unlock()

	select {
	case m.broadcastWake <- struct{}{}:
	default:
	}
}

func (m *SettingsManager) runBroadcasts() {
	defer close(m.broadcastDone)

	for {
		select {
		case <-m.closed:
			return
		case <-m.broadcastWake:
		}

		m.broadcastMu.Lock()
		snapshot := m.pending
		m.pending = nil
		m.broadcastMu.Unlock()

		if snapshot != nil {
			m.broadcaster.Broadcast(context.Background(), *snapshot)
		}
	}
}

func (m *SettingsManager) currentIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings.CurrentAPIKeyIndex == nil {
		return -1
	}
	return *m.settings.CurrentAPIKeyIndex
}

// AddListener registers a change observer
func (m *SettingsManager) AddListener(fn driving.SettingsListener) driving.ListenerID {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.nextListenerID++
	id := m.nextListenerID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	return id
}

// RemoveListener unregisters an observer
func (m *SettingsManager) RemoveListener(id driving.ListenerID) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = lo.Reject(m.listeners, func(l listenerEntry, _ int) bool {
		return l.id == id
	})
}

// notifyListeners calls every listener over a copy of the list, so listeners
// may add or remove listeners while being notified.
func (m *SettingsManager) notifyListeners(settings domain.Settings) {
	m.listenersMu.Lock()
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		m.callListener(l, settings)
	}
}

func (m *SettingsManager) callListener(l listenerEntry, settings domain.Settings) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("settings listener panicked", "listener_id", l.id, "panic", r)
		}
	}()
	l.fn(*settings.Clone())
}

// Close stops the change feed subscription and the broadcast loop.
// A broadcast already in flight is allowed to finish.
func (m *SettingsManager) Close() error {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}

	m.closeOnce.Do(func() { close(m.closed) })
	if m.broadcastDone != nil {
		<-m.broadcastDone
	}
	return nil
}
