package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// SettingsStore persists the flat settings mapping for one storage area and
// reports every change made to it, including changes by other processes.
type SettingsStore interface {
	// GetAll returns every persisted key for the store's area
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)

	// SetAll persists the given keys, leaving other keys untouched
	SetAll(ctx context.Context, values map[string]json.RawMessage) error

	// Watch subscribes to the change feed. Events are delivered asynchronously
	// until stop is called or ctx is cancelled.
	Watch(ctx context.Context, fn func(domain.ChangeEvent)) (stop func(), err error)

	// Area returns the storage area the store is scoped to
	Area() domain.StorageArea

	// Ping checks if the backend is reachable
	Ping(ctx context.Context) error
}
