package domain

import "time"

// ContextKind identifies what an execution context is
type ContextKind string

const (
	ContextKindContent    ContextKind = "content"
	ContextKindOptions    ContextKind = "options"
	ContextKindPopup      ContextKind = "popup"
	ContextKindBackground ContextKind = "background"
)

// IsValid returns true if this is a known context kind
func (k ContextKind) IsValid() bool {
	switch k {
	case ContextKindContent, ContextKindOptions, ContextKindPopup, ContextKindBackground:
		return true
	default:
		return false
	}
}

// DefaultTargetScope matches the product edit pages the content script runs in
const DefaultTargetScope = "https://onlinesalepoint.com/shop/products/*/edit"

// FallbackCacheKey is the page-local key the snapshot is cached under
const FallbackCacheKey = "product_descripton_generator_settings"

// ContextInfo describes a connected execution context
type ContextInfo struct {
	ID          string      `json:"id"`
	Kind        ContextKind `json:"kind"`
	URL         string      `json:"url,omitempty"`
	ConnectedAt time.Time   `json:"connected_at"`
}

// ContextMessageType identifies a frame pushed to a context
type ContextMessageType string

const (
	ContextMessageSettings      ContextMessageType = "settings"
	ContextMessageStoreFallback ContextMessageType = "store_fallback"
	ContextMessageResponse      ContextMessageType = "response"
)

// ContextMessage is a frame pushed from the service to a context
type ContextMessage struct {
	ID       string             `json:"id,omitempty"`
	Type     ContextMessageType `json:"type"`
	Settings *Settings          `json:"settings,omitempty"`
	Key      string             `json:"key,omitempty"`
	Value    string             `json:"value,omitempty"`
	Response any                `json:"response,omitempty"`
}
