package driven

import (
	"context"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// ContextTarget is one execution context that can receive pushed settings
type ContextTarget interface {
	// Info describes the context
	Info() domain.ContextInfo

	// StoreFallback writes value under key into the context's local cache
	StoreFallback(ctx context.Context, key, value string) error

	// Notify delivers a frame to the context
	Notify(ctx context.Context, msg domain.ContextMessage) error
}

// TargetRegistry enumerates the contexts currently connected
type TargetRegistry interface {
	// Targets returns contexts whose URL matches scope.
	// An empty scope matches every context.
	Targets(ctx context.Context, scope string) ([]ContextTarget, error)
}
