package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/chatwave/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errConnectionClosed = errors.New("connection closed")

// Connection is one websocket client. It is the realtime.Sink for its handle:
// the dispatcher queues frames with Deliver and the write pump drains them.
type Connection struct {
	server    *Server
	handle    realtime.Handle
	conn      *websocket.Conn
	addr      string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	log       *slog.Logger
}

func newConnection(s *Server, conn *websocket.Conn, addr string) *Connection {
	handle := realtime.NewHandle()
	if conn != nil {
		conn.SetReadLimit(s.config.MaxMessageSize)
	}
	return &Connection{
		server:  s,
		handle:  handle,
		conn:    conn,
		addr:    addr,
		send:    make(chan []byte, s.config.SendBufferSize),
		done:    make(chan struct{}),
		limiter: newRateLimiter(s.config.RateLimitBurst, s.config.RateLimitRefillInterval),
		log:     s.log.With("handle", handle, "addr", addr),
	}
}

// Deliver queues frame for the write pump. It waits for room in the queue
// until ctx is done.
func (c *Connection) Deliver(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close asks the write pump to flush, send a close frame and drop the socket.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Connection) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the error and returns the disconnect reason.
func (c *Connection) handleReadError(err error) string {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Info("Message exceeded maximum size", "max_bytes", c.server.config.MaxMessageSize)
		return "message too large"
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Debug("Client closed connection", "error", err)
		return "client closed"
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Debug("Connection closed", "error", err)
		return "connection closed"
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("Unexpected WebSocket close", "error", err)
		return "unexpected close"
	}

	c.log.Warn("WebSocket read error", "error", err)
	return "read error"
}

func (c *Connection) checkRateLimit(ctx context.Context) bool {
	if c.limiter.Allow() {
		return true
	}
	c.log.Info("Rate limit exceeded; discarding message",
		"burst", c.server.config.RateLimitBurst,
		"interval", c.server.config.RateLimitRefillInterval)
	c.server.controller.Reject(ctx, c.handle, "", realtime.ErrRateLimited)
	return false
}

// processMessage decodes one client frame and routes it. Refused requests are
// answered with an error event on this connection only.
func (c *Connection) processMessage(ctx context.Context, raw []byte) {
	request, cmd, err := decodeCommand(raw)
	if err == nil {
		err = c.server.route(ctx, c.handle, cmd)
	}
	if err != nil {
		c.log.Debug("Request refused", "request", request, "error", err)
		c.server.controller.Reject(ctx, c.handle, request, err)
	}
}

func (c *Connection) readPump(ctx context.Context) {
	reason := "read error"
	defer func() {
		c.server.controller.Disconnect(context.WithoutCancel(ctx), c.handle, reason)
		_ = c.Close()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			reason = c.handleReadError(err)
			return
		}
		if !c.checkRateLimit(ctx) {
			continue
		}
		c.processMessage(ctx, raw)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Connection) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.flushQueued()
		return c.writeCloseMessage()
	}
}

func (c *Connection) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}

// flushQueued writes whatever is already queued, best effort.
func (c *Connection) flushQueued() {
	for range len(c.send) {
		if !c.writeTextMessage(<-c.send) {
			return
		}
	}
}

func (c *Connection) writeCloseMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error writing close message", "error", err)
	}
	return false
}

func (c *Connection) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

func (c *Connection) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
