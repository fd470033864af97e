// Package client is the caller side of the message contract. Content
// pages and the CLI use it to talk to a running descgen-core server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// DefaultTimeout bounds every round-trip
const DefaultTimeout = 3 * time.Second

// Source reports where a settings snapshot came from
type Source string

const (
	SourceLive     Source = "live"
	SourceCache    Source = "cache"
	SourceDefaults Source = "defaults"
)

// ErrRequestFailed wraps transport and non-2xx failures
var ErrRequestFailed = errors.New("request failed")

// Config holds client configuration
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// CachePath persists the last good snapshot across runs. Empty keeps it in memory only.
	CachePath string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client sends messages to the server and remembers the last good snapshot
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	cachePath  string
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.RWMutex
	last *domain.Settings
}

// New creates a new Client
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    timeout,
		cachePath:  cfg.CachePath,
		httpClient: httpClient,
		logger:     logger.With("component", "client"),
	}
	c.loadCache()
	return c
}

// Send posts a message and returns the raw reply body
func (c *Client) Send(ctx context.Context, msg domain.Message) (json.RawMessage, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/messages", body)
}

// Settings returns the live snapshot, falling back to the last good snapshot
// and then to defaults when the server does not answer in time.
func (c *Client) Settings(ctx context.Context) (domain.Settings, Source) {
	settings, err := c.FetchSettings(ctx)
	if err == nil {
		return settings, SourceLive
	}

	c.logger.Warn("failed to get settings, using fallback", "error", err)

	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()
	if last != nil {
		return *last.Clone(), SourceCache
	}
	return *domain.DefaultSettings(), SourceDefaults
}

// FetchSettings sends GET_SETTINGS and caches the reply
func (c *Client) FetchSettings(ctx context.Context) (domain.Settings, error) {
	raw, err := c.Send(ctx, domain.Message{Type: domain.MessageGetSettings})
	if err != nil {
		return domain.Settings{}, err
	}

	var resp domain.Response
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Error != "" {
		return domain.Settings{}, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}

	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if settings.APIEndpoint == "" {
		settings.APIEndpoint = domain.DefaultAPIEndpoint
	}
	settings.Normalize()

	c.remember(settings)
	return settings, nil
}

// GetAPIKey returns the active key, or "" when none is configured
func (c *Client) GetAPIKey(ctx context.Context) (string, error) {
	resp, err := c.message(ctx, domain.Message{Type: domain.MessageGetAPIKey})
	if err != nil {
		return "", err
	}
	if resp.APIKey == nil {
		return "", nil
	}
	return *resp.APIKey, nil
}

// RotateAPIKey advances to the next key and returns it
func (c *Client) RotateAPIKey(ctx context.Context) (string, error) {
	resp, err := c.message(ctx, domain.Message{Type: domain.MessageRotateAPIKey})
	if err != nil {
		return "", err
	}
	if resp.APIKey == nil {
		return "", nil
	}
	return *resp.APIKey, nil
}

// SaveSettings merges patch into the server settings
func (c *Client) SaveSettings(ctx context.Context, patch *domain.SettingsPatch) error {
	_, err := c.message(ctx, domain.Message{Type: domain.MessageSaveSettings, Settings: patch})
	return err
}

// ResetSettings restores defaults on the server
func (c *Client) ResetSettings(ctx context.Context) error {
	_, err := c.message(ctx, domain.Message{Type: domain.MessageResetSettings})
	return err
}

// OpenOptions asks the server to show the options page
func (c *Client) OpenOptions(ctx context.Context) error {
	_, err := c.message(ctx, domain.Message{Type: domain.MessageOpenOptions})
	return err
}

// Contexts lists connected extension contexts
func (c *Client) Contexts(ctx context.Context) ([]domain.ContextInfo, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v1/contexts", nil)
	if err != nil {
		return nil, err
	}
	var infos []domain.ContextInfo
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, fmt.Errorf("decode contexts: %w", err)
	}
	return infos, nil
}

// message sends msg and turns failure replies into errors
func (c *Client) message(ctx context.Context, msg domain.Message) (domain.Response, error) {
	raw, err := c.Send(ctx, msg)
	if err != nil {
		return domain.Response{}, err
	}

	var resp domain.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	if resp.Success != nil && !*resp.Success {
		return resp, ErrRequestFailed
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s (status %d)", ErrRequestFailed, apiErr.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	return json.RawMessage(data), nil
}

// Cached returns the last good snapshot, if any
func (c *Client) Cached() (domain.Settings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return domain.Settings{}, false
	}
	return *c.last.Clone(), true
}

func (c *Client) remember(settings domain.Settings) {
	c.mu.Lock()
	c.last = settings.Clone()
	c.mu.Unlock()

	if c.cachePath == "" {
		return
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o700); err != nil {
		c.logger.Debug("failed to create cache dir", "error", err)
		return
	}
	if err := os.WriteFile(c.cachePath, data, 0o600); err != nil {
		c.logger.Debug("failed to write settings cache", "error", err)
	}
}

func (c *Client) loadCache() {
	if c.cachePath == "" {
		return
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return
	}
	var settings domain.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		c.logger.Debug("ignoring unreadable settings cache", "error", err)
		return
	}
	settings.Normalize()
	c.last = &settings
}
