package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

func testEncryptor(t *testing.T) *SecretEncryptor {
	t.Helper()
	enc, err := NewSecretEncryptorFromSecret("test secret")
	require.NoError(t, err)
	return enc
}

func TestSettingsStore_EncodeDecode_Plain(t *testing.T) {
	store := NewSettingsStore(nil, domain.StorageAreaSync, nil, nil)

	value, secret, err := store.encode(domain.SettingsKeyAPIKeys, json.RawMessage(`["k1"]`))
	require.NoError(t, err)
	assert.Nil(t, secret)
	assert.Equal(t, `["k1"]`, value)

	raw, err := store.decode([]byte(`["k1"]`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `["k1"]`, string(raw))
}

func TestSettingsStore_EncodeDecode_Encrypted(t *testing.T) {
	store := NewSettingsStore(nil, domain.StorageAreaSync, testEncryptor(t), nil)

	value, secret, err := store.encode(domain.SettingsKeyAPIKeys, json.RawMessage(`["k1","k2"]`))
	require.NoError(t, err)
	assert.Nil(t, value)
	require.NotEmpty(t, secret)
	assert.NotContains(t, string(secret), "k1")

	raw, err := store.decode(nil, secret)
	require.NoError(t, err)
	assert.JSONEq(t, `["k1","k2"]`, string(raw))
}

func TestSettingsStore_Encode_NonSecretStaysPlain(t *testing.T) {
	store := NewSettingsStore(nil, domain.StorageAreaSync, testEncryptor(t), nil)

	value, secret, err := store.encode(domain.SettingsKeyAPIEndpoint, json.RawMessage(`"https://x"`))
	require.NoError(t, err)
	assert.Nil(t, secret)
	assert.Equal(t, `"https://x"`, value)
}

func TestSettingsStore_Decode_SecretWithoutEncryptor(t *testing.T) {
	writer := NewSettingsStore(nil, domain.StorageAreaSync, testEncryptor(t), nil)
	_, secret, err := writer.encode(domain.SettingsKeyAPIKeys, json.RawMessage(`["k1"]`))
	require.NoError(t, err)

	reader := NewSettingsStore(nil, domain.StorageAreaSync, nil, nil)
	_, err = reader.decode(nil, secret)
	assert.True(t, errors.Is(err, ErrEncryptorRequired))
}

func TestSameJSON(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", `["a","b"]`, `["a","b"]`, true},
		{"jsonb spacing", `["a", "b"]`, `["a","b"]`, true},
		{"reordered", `["b","a"]`, `["a","b"]`, false},
		{"number", `1`, `1.0`, true},
		{"different type", `"1"`, `1`, false},
		{"invalid", `{`, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameJSON(json.RawMessage(tt.a), json.RawMessage(tt.b)))
		})
	}
}

func TestSettingsStore_Dispatch_SkipsOwnAndOtherAreas(t *testing.T) {
	// A nil db would panic if dispatch went on to read the value
	store := NewSettingsStore(nil, domain.StorageAreaSync, nil, nil)
	called := false
	fn := func(domain.ChangeEvent) { called = true }

	own, err := json.Marshal(changeNotification{Area: domain.StorageAreaSync, Key: domain.SettingsKeyAPIKeys, Origin: store.origin})
	require.NoError(t, err)
	store.dispatch(context.Background(), string(own), fn)

	local, err := json.Marshal(changeNotification{Area: domain.StorageAreaLocal, Key: domain.SettingsKeyAPIKeys, Origin: "other"})
	require.NoError(t, err)
	store.dispatch(context.Background(), string(local), fn)

	store.dispatch(context.Background(), "not json", fn)

	assert.False(t, called)
}

func TestNewSettingsStore_DistinctOrigins(t *testing.T) {
	a := NewSettingsStore(nil, domain.StorageAreaSync, nil, nil)
	b := NewSettingsStore(nil, domain.StorageAreaSync, nil, nil)

	assert.NotEmpty(t, a.origin)
	assert.NotEqual(t, a.origin, b.origin)
}

// Integration tests below need a real database:
// DESCGEN_TEST_DATABASE_URL=postgres://localhost/descgen_test?sslmode=disable

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DESCGEN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DESCGEN_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))

	_, err = db.ExecContext(ctx, `DELETE FROM settings_kv`)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSettingsStore_Integration_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewSettingsStore(db, domain.StorageAreaSync, testEncryptor(t), nil)

	require.NoError(t, store.SetAll(ctx, map[string]json.RawMessage{
		domain.SettingsKeyAPIKeys:             json.RawMessage(`["k1","k2"]`),
		domain.SettingsKeyCurrentAPIKeyIndex: json.RawMessage(`1`),
		domain.SettingsKeyAPIEndpoint:         json.RawMessage(`"https://x"`),
	}))

	record, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `["k1","k2"]`, string(record[domain.SettingsKeyAPIKeys]))
	assert.JSONEq(t, `1`, string(record[domain.SettingsKeyCurrentAPIKeyIndex]))
	assert.JSONEq(t, `"https://x"`, string(record[domain.SettingsKeyAPIEndpoint]))

	// The other area is isolated
	local := NewSettingsStore(db, domain.StorageAreaLocal, nil, nil)
	record, err = local.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, record)
}

func TestSettingsStore_Integration_Watch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	reader := NewSettingsStore(db, domain.StorageAreaSync, nil, nil)
	writer := NewSettingsStore(db, domain.StorageAreaSync, nil, nil)

	var mu sync.Mutex
	var events []domain.ChangeEvent
	stop, err := reader.Watch(ctx, func(evt domain.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
	})
	require.NoError(t, err)
	defer stop()

	// Own writes are not reported back to the writer's watcher
	var ownCount int
	stopOwn, err := writer.Watch(ctx, func(domain.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		ownCount++
	})
	require.NoError(t, err)
	defer stopOwn()

	require.NoError(t, writer.SetAll(ctx, map[string]json.RawMessage{
		domain.SettingsKeyAPIEndpoint: json.RawMessage(`"https://a"`),
	}))
	// Unchanged value is not notified again
	require.NoError(t, writer.SetAll(ctx, map[string]json.RawMessage{
		domain.SettingsKeyAPIEndpoint: json.RawMessage(`"https://a"`),
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, 0, ownCount)
	assert.Equal(t, domain.SettingsKeyAPIEndpoint, events[0].Key)
	assert.JSONEq(t, `"https://a"`, string(events[0].NewValue))
}
