package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driven.TargetRegistry = (*Hub)(nil)

// Hub tracks connected extension contexts. It is the TargetRegistry the
// broadcaster pushes to and routes every request frame to the MessageRouter.
type Hub struct {
	router   driving.MessageRouter
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

// HubConfig holds configuration for the hub
type HubConfig struct {
	Router driving.MessageRouter
	// CheckOrigin validates the upgrade request origin. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
}

// NewHub creates a new Hub
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Hub{
		router: cfg.Router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With("component", "ws_hub"),
		conns:  make(map[string]*Conn),
	}
}

// ServeHTTP upgrades the request and registers the context.
// Query parameters: kind (content, options, popup) and url (the page URL).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind := domain.ContextKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.ContextKindContent
	}
	if !kind.IsValid() {
		http.Error(w, "invalid context kind", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	info := domain.ContextInfo{
		ID:          "ctx-" + uuid.NewString(),
		Kind:        kind,
		URL:         r.URL.Query().Get("url"),
		ConnectedAt: time.Now(),
	}

	conn := newConn(ws, h, info)
	if !h.register(conn) {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = ws.Close()
		return
	}

	h.logger.Info("context connected", "context_id", info.ID, "kind", info.Kind, "url", info.URL)

	go conn.writePump()
	go conn.readPump()
}

func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.info.ID] = c
	return true
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.info.ID]
	delete(h.conns, c.info.ID)
	h.mu.Unlock()

	if ok {
		h.logger.Info("context disconnected", "context_id", c.info.ID)
	}
}

// Targets returns connected contexts whose URL matches scope
func (h *Hub) Targets(ctx context.Context, scope string) ([]driven.ContextTarget, error) {
	matched := lo.Filter(h.snapshot(), func(c *Conn, _ int) bool {
		return MatchScope(scope, c.info.URL)
	})
	return lo.Map(matched, func(c *Conn, _ int) driven.ContextTarget {
		return c
	}), nil
}

// Contexts describes every connected context, oldest first
func (h *Hub) Contexts() []domain.ContextInfo {
	infos := lo.Map(h.snapshot(), func(c *Conn, _ int) domain.ContextInfo {
		return c.Info()
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// SetRouter replaces the router request frames are sent to.
// The broadcaster needs the hub before the router exists, so wiring sets it late.
func (h *Hub) SetRouter(router driving.MessageRouter) {
	h.mu.Lock()
	h.router = router
	h.mu.Unlock()
}

func (h *Hub) messageRouter() driving.MessageRouter {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.router
}

// Count returns the number of connected contexts
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Values(h.conns)
}

// Close disconnects every context and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := lo.Values(h.conns)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// MatchScope reports whether pageURL matches the glob scope.
// '*' matches within one path segment; query and fragment are ignored.
// An empty scope matches everything.
func MatchScope(scope, pageURL string) bool {
	if scope == "" {
		return true
	}
	if pageURL == "" {
		return false
	}

	if u, err := url.Parse(pageURL); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		pageURL = u.String()
	}

	ok, err := path.Match(scope, pageURL)
	return err == nil && ok
}
