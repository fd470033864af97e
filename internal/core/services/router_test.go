package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven/mocks"
)

func newTestRouter(t *testing.T, store *mocks.MockSettingsStore) (*SettingsManager, *mocks.MockOptionsOpener, *recordingBroadcaster, func(domain.Message) domain.Response) {
	t.Helper()
	m, broadcaster := newTestManager(t, store)
	opener := &mocks.MockOptionsOpener{}
	router := NewMessageRouter(m, opener, nil)
	return m, opener, broadcaster, func(msg domain.Message) domain.Response {
		return router.Handle(context.Background(), msg)
	}
}

func TestMessageRouter_InitializesBeforeAnswering(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	seedKeys(store, []string{"k1", "k2"}, 1)
	m, _, _, handle := newTestRouter(t, store)

	require.False(t, m.Initialized())
	resp := handle(domain.Message{Type: domain.MessageGetAPIKey})

	assert.True(t, m.Initialized())
	require.NotNil(t, resp.APIKey)
	assert.Equal(t, "k2", *resp.APIKey)
}

func TestMessageRouter_GetAPIKey_NoneConfigured(t *testing.T) {
	_, _, _, handle := newTestRouter(t, mocks.NewMockSettingsStore())

	resp := handle(domain.Message{Type: domain.MessageGetAPIKey})
	require.NotNil(t, resp.APIKey)
	assert.Equal(t, "", *resp.APIKey)
}

func TestMessageRouter_GetSettings(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	store.Seed(domain.SettingsKeyAPIEndpoint, "https://x")
	_, _, _, handle := newTestRouter(t, store)

	resp := handle(domain.Message{Type: domain.MessageGetSettings})
	require.NotNil(t, resp.Settings)
	assert.Equal(t, "https://x", resp.Settings.APIEndpoint)
	assert.Equal(t, resp.Settings, resp.Body())
}

func TestMessageRouter_SaveSettings(t *testing.T) {
	_, _, broadcaster, handle := newTestRouter(t, mocks.NewMockSettingsStore())

	keys := []string{"a", "b"}
	resp := handle(domain.Message{
		Type:     domain.MessageSaveSettings,
		Settings: &domain.SettingsPatch{APIKeys: &keys},
	})
	assert.True(t, resp.IsSuccess())
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1, broadcaster.count())

	resp = handle(domain.Message{Type: domain.MessageGetAPIKey})
	assert.Equal(t, "a", *resp.APIKey)
}

func TestMessageRouter_SaveSettings_Failure(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	store.SetAllErr = errors.New("write refused")
	_, _, _, handle := newTestRouter(t, store)

	endpoint := "https://x"
	resp := handle(domain.Message{
		Type:     domain.MessageSaveSettings,
		Settings: &domain.SettingsPatch{APIEndpoint: &endpoint},
	})
	require.NotNil(t, resp.Success)
	assert.False(t, *resp.Success)
	assert.Contains(t, resp.Error, "write refused")
}

func TestMessageRouter_RotateAPIKey(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	seedKeys(store, []string{"k1", "k2", "k3"}, 2)
	_, _, _, handle := newTestRouter(t, store)

	resp := handle(domain.Message{Type: domain.MessageRotateAPIKey})
	assert.True(t, resp.IsSuccess())
	require.NotNil(t, resp.APIKey)
	assert.Equal(t, "k1", *resp.APIKey)
}

func TestMessageRouter_RotateAPIKey_NoKeys(t *testing.T) {
	_, _, _, handle := newTestRouter(t, mocks.NewMockSettingsStore())

	resp := handle(domain.Message{Type: domain.MessageRotateAPIKey})
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, domain.ErrNoAPIKeys.Error(), resp.Error)
}

func TestMessageRouter_ResetSettings(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	seedKeys(store, []string{"k1"}, 0)
	m, _, _, handle := newTestRouter(t, store)

	resp := handle(domain.Message{Type: domain.MessageResetSettings})
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, *domain.DefaultSettings(), m.GetAll())
}

func TestMessageRouter_OpenOptions(t *testing.T) {
	_, opener, _, handle := newTestRouter(t, mocks.NewMockSettingsStore())

	resp := handle(domain.Message{Type: domain.MessageOpenOptions})
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, 1, opener.Calls())
}

func TestMessageRouter_OpenOptions_OpenerFailureStillSucceeds(t *testing.T) {
	m, _ := newTestManager(t, mocks.NewMockSettingsStore())
	opener := &mocks.MockOptionsOpener{Err: errors.New("no display")}
	router := NewMessageRouter(m, opener, nil)

	resp := router.Handle(context.Background(), domain.Message{Type: domain.MessageOpenOptions})
	assert.True(t, resp.IsSuccess())
}

func TestMessageRouter_UnknownType(t *testing.T) {
	_, _, _, handle := newTestRouter(t, mocks.NewMockSettingsStore())

	resp := handle(domain.Message{Type: "TRANSLATE"})
	assert.Nil(t, resp.Success)
	assert.Equal(t, "unknown request type", resp.Error)
}

func TestMessageRouter_InitializeCancelled(t *testing.T) {
	store := mocks.NewMockSettingsStore()
	store.GetAllGate = make(chan struct{})
	defer close(store.GetAllGate)
	m, _ := newTestManager(t, store)
	router := NewMessageRouter(m, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := router.Handle(ctx, domain.Message{Type: domain.MessageGetSettings})
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Settings)
}

func TestMessageRouter_OnInstalled(t *testing.T) {
	t.Run("opens options without keys", func(t *testing.T) {
		m, _ := newTestManager(t, mocks.NewMockSettingsStore())
		opener := &mocks.MockOptionsOpener{}
		router := NewMessageRouter(m, opener, nil)

		require.NoError(t, router.OnInstalled(context.Background()))
		assert.Equal(t, 1, opener.Calls())
	})

	t.Run("skips options with keys", func(t *testing.T) {
		store := mocks.NewMockSettingsStore()
		seedKeys(store, []string{"k1"}, 0)
		m, _ := newTestManager(t, store)
		opener := &mocks.MockOptionsOpener{}
		router := NewMessageRouter(m, opener, nil)

		require.NoError(t, router.OnInstalled(context.Background()))
		assert.Equal(t, 0, opener.Calls())
	})
}
