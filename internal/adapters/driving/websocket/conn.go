package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ContextTarget = (*Conn)(nil)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768

	sendBufferSize = 16
)

// ErrConnClosed is returned when sending to a disconnected context
var ErrConnClosed = errors.New("context connection closed")

// request is a frame sent by a context. ID is echoed on the response.
type request struct {
	ID string `json:"id"`
	domain.Message
}

// Conn is one connected extension context
type Conn struct {
	ws   *websocket.Conn
	hub  *Hub
	info domain.ContextInfo
	send chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, hub *Hub, info domain.ContextInfo) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:     ws,
		hub:    hub,
		info:   info,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Info describes the context
func (c *Conn) Info() domain.ContextInfo {
	return c.info
}

// StoreFallback asks the context to cache value under key in its local storage
func (c *Conn) StoreFallback(ctx context.Context, key, value string) error {
	return c.write(ctx, domain.ContextMessage{
		Type:  domain.ContextMessageStoreFallback,
		Key:   key,
		Value: value,
	})
}

// Notify queues a frame for the context
func (c *Conn) Notify(ctx context.Context, msg domain.ContextMessage) error {
	return c.write(ctx, msg)
}

func (c *Conn) write(ctx context.Context, msg domain.ContextMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump routes request frames until the connection fails
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "context_id", c.info.ID, "error", err)
			}
			return
		}

		c.handle(data)
	}
}

func (c *Conn) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.logger.Debug("dropping malformed frame", "context_id", c.info.ID, "error", err)
		return
	}

	resp := domain.ErrorResponse(domain.ErrServiceUnavailable)
	if router := c.hub.messageRouter(); router != nil {
		resp = router.Handle(c.ctx, req.Message)
	}

	reply := domain.ContextMessage{
		ID:       req.ID,
		Type:     domain.ContextMessageResponse,
		Response: resp.Body(),
	}
	if err := c.write(c.ctx, reply); err != nil {
		c.hub.logger.Debug("failed to reply", "context_id", c.info.ID, "error", err)
	}
}

// writePump drains the send queue and keeps the connection alive
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.hub.unregister(c)
		_ = c.ws.Close()
	})
}
