package domain

import "encoding/json"

// StorageArea scopes a set of persisted settings
type StorageArea string

const (
	// StorageAreaSync is shared by every context of the extension
	StorageAreaSync StorageArea = "sync"
	// StorageAreaLocal is private to one installation
	StorageAreaLocal StorageArea = "local"
)

// IsValid returns true if this is a known storage area
func (a StorageArea) IsValid() bool {
	switch a {
	case StorageAreaSync, StorageAreaLocal:
		return true
	default:
		return false
	}
}

// ChangeEvent is one persisted field mutation reported by a store's change feed
type ChangeEvent struct {
	Area     StorageArea     `json:"area"`
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
	// Origin identifies the store instance that made the write
	Origin string `json:"origin,omitempty"`
}
