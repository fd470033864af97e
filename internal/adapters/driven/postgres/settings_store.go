package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

const (
	// NotifyChannel is the LISTEN/NOTIFY channel for settings changes
	NotifyChannel = "settings_changes"

	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
)

// ErrEncryptorRequired is returned when reading an encrypted field without a key
var ErrEncryptorRequired = errors.New("encrypted settings field requires an encryption secret")

// secretKeys are stored encrypted when an encryptor is configured
var secretKeys = map[string]bool{
	domain.SettingsKeyAPIKeys: true,
}

// changeNotification is the pg_notify payload. Values are re-read by the
// listener so secrets never travel through NOTIFY.
type changeNotification struct {
	Area   domain.StorageArea `json:"area"`
	Key    string             `json:"key"`
	Origin string             `json:"origin,omitempty"`
}

// SettingsStore implements driven.SettingsStore using PostgreSQL.
// Watch only reports writes made through other instances.
type SettingsStore struct {
	db        *DB
	area      domain.StorageArea
	origin    string
	encryptor *SecretEncryptor
	logger    *slog.Logger
}

// NewSettingsStore creates a new SettingsStore.
// encryptor may be nil to store every field as plain JSONB.
func NewSettingsStore(db *DB, area domain.StorageArea, encryptor *SecretEncryptor, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		db:        db,
		area:      area,
		origin:    uuid.NewString(),
		encryptor: encryptor,
		logger:    logger.With("component", "postgres_settings_store", "area", area),
	}
}

// Area returns the storage area
func (s *SettingsStore) Area() domain.StorageArea {
	return s.area
}

// GetAll returns every persisted field for the area
func (s *SettingsStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, secret FROM settings_kv WHERE area = $1`, s.area)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	record := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value, secret []byte
		if err := rows.Scan(&key, &value, &secret); err != nil {
			return nil, fmt.Errorf("failed to scan settings row: %w", err)
		}

		raw, err := s.decode(value, secret)
		if err != nil {
			s.logger.Warn("skipping unreadable settings field", "key", key, "error", err)
			continue
		}
		record[key] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	return record, nil
}

// SetAll upserts the given fields in one transaction and notifies listeners
// for every field whose value changed.
func (s *SettingsStore) SetAll(ctx context.Context, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}

	keys := lo.Keys(values)
	sort.Strings(keys)

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			changed, err := s.changed(ctx, tx, key, values[key])
			if err != nil {
				return err
			}
			if !changed {
				continue
			}

			value, secret, err := s.encode(key, values[key])
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO settings_kv (area, key, value, secret, updated_at)
				VALUES ($1, $2, $3, $4, NOW())
				ON CONFLICT (area, key) DO UPDATE SET
					value = EXCLUDED.value,
					secret = EXCLUDED.secret,
					updated_at = EXCLUDED.updated_at
			`, s.area, key, value, secret)
			if err != nil {
				return fmt.Errorf("failed to save setting %s: %w", key, err)
			}

			payload, err := json.Marshal(changeNotification{Area: s.area, Key: key, Origin: s.origin})
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
				return fmt.Errorf("failed to notify settings change: %w", err)
			}
		}
		return nil
	})
}

// changed locks the existing row, if any, and compares it with raw
func (s *SettingsStore) changed(ctx context.Context, tx *sql.Tx, key string, raw json.RawMessage) (bool, error) {
	var value, secret []byte
	err := tx.QueryRowContext(ctx,
		`SELECT value, secret FROM settings_kv WHERE area = $1 AND key = $2 FOR UPDATE`,
		s.area, key,
	).Scan(&value, &secret)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}

	old, err := s.decode(value, secret)
	if err != nil {
		return true, nil
	}
	return !sameJSON(old, raw), nil
}

// Watch listens on NotifyChannel and re-reads each changed field
func (s *SettingsStore) Watch(ctx context.Context, fn func(domain.ChangeEvent)) (func(), error) {
	listener := pq.NewListener(s.db.url, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.logger.Warn("settings listener event", "event", ev, "error", err)
			}
		})

	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen for settings changes: %w", err)
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = listener.Close()
		})
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				stop()
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Notifications may have been missed while reconnecting
					s.resync(ctx, fn)
					continue
				}
				s.dispatch(ctx, n.Extra, fn)
			}
		}
	}()

	return stop, nil
}

func (s *SettingsStore) dispatch(ctx context.Context, payload string, fn func(domain.ChangeEvent)) {
	var n changeNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Warn("dropping malformed settings notification", "error", err)
		return
	}
	if n.Area != s.area || n.Origin == s.origin {
		return
	}

	raw, err := s.get(ctx, n.Key)
	if err != nil {
		s.logger.Warn("failed to read changed setting", "key", n.Key, "error", err)
		return
	}

	fn(domain.ChangeEvent{Area: s.area, Key: n.Key, NewValue: raw, Origin: n.Origin})
}

// resync emits every stored field; receivers drop events that change nothing
func (s *SettingsStore) resync(ctx context.Context, fn func(domain.ChangeEvent)) {
	record, err := s.GetAll(ctx)
	if err != nil {
		s.logger.Warn("failed to resync settings after reconnect", "error", err)
		return
	}
	for _, key := range domain.SettingsKeys {
		if raw, ok := record[key]; ok {
			fn(domain.ChangeEvent{Area: s.area, Key: key, NewValue: raw})
		}
	}
}

// get returns one field, or nil when the row no longer exists
func (s *SettingsStore) get(ctx context.Context, key string) (json.RawMessage, error) {
	var value, secret []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value, secret FROM settings_kv WHERE area = $1 AND key = $2`,
		s.area, key,
	).Scan(&value, &secret)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(value, secret)
}

// Ping checks if the database is reachable
func (s *SettingsStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// encode returns the column values for one field
func (s *SettingsStore) encode(key string, raw json.RawMessage) (any, []byte, error) {
	if s.encryptor != nil && secretKeys[key] {
		blob, err := s.encryptor.EncryptRaw(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encrypt setting %s: %w", key, err)
		}
		return nil, blob, nil
	}
	return string(raw), nil, nil
}

// decode converts stored column values back to JSON
func (s *SettingsStore) decode(value, secret []byte) (json.RawMessage, error) {
	if secret != nil {
		if s.encryptor == nil {
			return nil, ErrEncryptorRequired
		}
		return s.encryptor.DecryptRaw(secret)
	}
	return json.RawMessage(value), nil
}

// sameJSON compares two encodings semantically; jsonb does not keep formatting
func sameJSON(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
