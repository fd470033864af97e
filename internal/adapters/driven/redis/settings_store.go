package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

const (
	// Key prefix for settings hashes, suffixed by storage area
	settingsPrefix = "descgen:settings:"

	// ChangesChannel carries JSON encoded domain.ChangeEvent values
	ChangesChannel = "descgen:settings:changes"

	maxTxRetries = 5
)

// SettingsStore implements driven.SettingsStore using a Redis hash per area.
// Every changed field is published on ChangesChannel inside the same
// MULTI/EXEC as the write, so all instances observe the same order.
// Watch only reports writes made through other instances.
type SettingsStore struct {
	client *redis.Client
	area   domain.StorageArea
	origin string
	logger *slog.Logger
}

// NewSettingsStore creates a new Redis-backed SettingsStore for one area
func NewSettingsStore(client *redis.Client, area domain.StorageArea, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		client: client,
		area:   area,
		origin: uuid.NewString(),
		logger: logger.With("component", "redis_settings_store", "area", area),
	}
}

func (s *SettingsStore) key() string {
	return settingsPrefix + string(s.area)
}

// Area returns the storage area
func (s *SettingsStore) Area() domain.StorageArea {
	return s.area
}

// GetAll returns every field of the area's hash
func (s *SettingsStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	fields, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	record := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if !json.Valid([]byte(v)) {
			s.logger.Warn("skipping malformed settings field", "key", k)
			continue
		}
		record[k] = json.RawMessage(v)
	}
	return record, nil
}

// SetAll writes the given fields and publishes one event per changed field.
// Unchanged fields are rewritten but not published.
func (s *SettingsStore) SetAll(ctx context.Context, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}

	fields := lo.Keys(values)
	sort.Strings(fields)

	txf := func(tx *redis.Tx) error {
		current, err := tx.HMGet(ctx, s.key(), fields...).Result()
		if err != nil {
			return err
		}

		var events [][]byte
		for i, field := range fields {
			var old json.RawMessage
			if str, ok := current[i].(string); ok {
				old = json.RawMessage(str)
			}
			if old != nil && bytes.Equal(old, values[field]) {
				continue
			}

			payload, err := json.Marshal(domain.ChangeEvent{
				Area:     s.area,
				Key:      field,
				OldValue: old,
				NewValue: values[field],
				Origin:   s.origin,
			})
			if err != nil {
				return fmt.Errorf("failed to encode change event: %w", err)
			}
			events = append(events, payload)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			args := make([]any, 0, len(fields)*2)
			for _, field := range fields {
				args = append(args, field, string(values[field]))
			}
			pipe.HSet(ctx, s.key(), args...)
			for _, payload := range events {
				pipe.Publish(ctx, ChangesChannel, payload)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key())
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return fmt.Errorf("failed to save settings: %w", redis.TxFailedErr)
}

// Watch subscribes to ChangesChannel and forwards events for this area.
// Events published by this instance's own SetAll are skipped.
func (s *SettingsStore) Watch(ctx context.Context, fn func(domain.ChangeEvent)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, ChangesChannel)

	// Wait for the subscription to be confirmed before reporting success
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to settings changes: %w", err)
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	messages := pubsub.Channel()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				stop()
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var evt domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					s.logger.Warn("dropping malformed change event", "error", err)
					continue
				}
				if evt.Area != s.area || evt.Origin == s.origin {
					continue
				}
				fn(evt)
			}
		}
	}()

	return stop, nil
}

// Ping checks if Redis is reachable
func (s *SettingsStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
