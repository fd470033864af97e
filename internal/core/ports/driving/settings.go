package driving

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// SettingsListener is called with a copy of the snapshot after every change
type SettingsListener func(domain.Settings)

// ListenerID identifies a registered listener for removal
type ListenerID uint64

// SettingsService is the single in-process view of the extension settings
type SettingsService interface {
	// Initialize loads persisted settings and subscribes to the change feed.
	// Safe to call repeatedly and concurrently; only the first call loads.
	Initialize(ctx context.Context) error

	// Initialized reports whether Initialize has completed
	Initialized() bool

	// Get returns one field by persisted name; unknown keys return nil, false
	Get(key string) (any, bool)

	// GetAll returns a copy of the full snapshot
	GetAll() domain.Settings

	// GetAPIKeys returns a copy of the ordered key list
	GetAPIKeys() []string

	// GetCurrentAPIKey returns the active key or "" when none is configured
	GetCurrentAPIKey() string

	// RotateToNextAPIKey advances to the next key and returns it.
	// Returns domain.ErrNoAPIKeys without changing state when no keys exist.
	RotateToNextAPIKey(ctx context.Context) (string, error)

	// SaveToStorage merges patch into the snapshot and persists it.
	// A nil patch persists and re-broadcasts the current snapshot.
	SaveToStorage(ctx context.Context, patch *domain.SettingsPatch) error

	// Set saves a single field given its persisted name and JSON value
	Set(ctx context.Context, key string, value json.RawMessage) error

	// ResetToDefaults replaces the snapshot with defaults and persists it
	ResetToDefaults(ctx context.Context) error

	// AddListener registers a change observer
	AddListener(fn SettingsListener) ListenerID

	// RemoveListener unregisters an observer; unknown ids are ignored
	RemoveListener(id ListenerID)
}
