package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Ensure broadcaster implements Broadcaster
var _ driving.Broadcaster = (*broadcaster)(nil)

const defaultTargetTimeout = 2 * time.Second

// broadcaster pushes snapshots to connected contexts, best effort.
type broadcaster struct {
	registry      driven.TargetRegistry
	scope         string
	fallbackKey   string
	targetTimeout time.Duration
	logger        *slog.Logger
}

// BroadcasterConfig holds configuration for the broadcaster.
type BroadcasterConfig struct {
	Registry      driven.TargetRegistry
	Scope         string // URL glob; empty matches every context
	FallbackKey   string
	TargetTimeout time.Duration
	Logger        *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(cfg BroadcasterConfig) driving.Broadcaster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.TargetTimeout
	if timeout <= 0 {
		timeout = defaultTargetTimeout
	}

	fallbackKey := cfg.FallbackKey
	if fallbackKey == "" {
		fallbackKey = domain.FallbackCacheKey
	}

	return &broadcaster{
		registry:      cfg.Registry,
		scope:         cfg.Scope,
		fallbackKey:   fallbackKey,
		targetTimeout: timeout,
		logger:        logger.With("component", "broadcaster"),
	}
}

// Broadcast delivers the snapshot to every matching context concurrently.
// It returns once every target has succeeded, failed or timed out.
func (b *broadcaster) Broadcast(ctx context.Context, settings domain.Settings) {
	targets, err := b.registry.Targets(ctx, b.scope)
	if err != nil {
		b.logger.Error("failed to list broadcast targets", "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	payload, err := json.Marshal(settings)
	if err != nil {
		b.logger.Error("failed to encode settings for broadcast", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target driven.ContextTarget) {
			defer wg.Done()
			b.deliver(ctx, target, settings, string(payload))
		}(target)
	}
	wg.Wait()

	b.logger.Debug("settings broadcast", "targets", len(targets))
}

// deliver updates one target's fallback cache and notifies it.
// Each step is attempted independently; failures are logged only.
func (b *broadcaster) deliver(ctx context.Context, target driven.ContextTarget, settings domain.Settings, payload string) {
	info := target.Info()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("could not update context",
				"context_id", info.ID,
				"error", fmt.Errorf("%w: panic: %v", domain.ErrTargetUnreachable, r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.targetTimeout)
	defer cancel()

	if err := target.StoreFallback(ctx, b.fallbackKey, payload); err != nil {
		b.logger.Warn("could not update context fallback cache",
			"context_id", info.ID,
			"error", fmt.Errorf("%w: %w", domain.ErrTargetUnreachable, err),
		)
	}

	msg := domain.ContextMessage{
		Type:     domain.ContextMessageSettings,
		Settings: settings.Clone(),
	}
	if err := target.Notify(ctx, msg); err != nil {
		b.logger.Warn("could not notify context",
			"context_id", info.ID,
			"error", fmt.Errorf("%w: %w", domain.ErrTargetUnreachable, err),
		)
	}
}
