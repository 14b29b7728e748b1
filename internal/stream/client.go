// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/validation"
)

// ErrGaveUp is returned by Run after MaxAttempts consecutive failed
// reconnects. Callers can treat it as terminal rather than restarting.
var ErrGaveUp = errors.New("stream: gave up reconnecting")

// ErrQueued is returned by Send when the message was queued for the next
// connection instead of transmitted. Expected backpressure, not a failure.
var ErrQueued = errors.New("stream: message queued")

// State describes the connection lifecycle of the stream client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config controls client behavior. Zero values select defaults.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the sales feed.
	URL string

	// ConnectTimeout bounds a single dial attempt. Default 10s.
	ConnectTimeout time.Duration

	// HeartbeatInterval is the application-level ping cadence while
	// connected. Default 30s.
	HeartbeatInterval time.Duration

	// BaseBackoff is the first reconnect delay. Default 1s.
	BaseBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Default 30s.
	MaxBackoff time.Duration

	// MaxAttempts bounds consecutive failed reconnects before the client
	// gives up. Zero means retry forever.
	MaxAttempts int

	// QueueLimit caps messages held for the next connection. Default 100.
	QueueLimit int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = 100
	}
}

// Callbacks are invoked from the client's internal goroutines. Handlers
// must not block; hand work off to a channel or goroutine if it is slow.
// All fields are optional.
type Callbacks struct {
	// OnStateChange fires on every transition with the previous and new
	// state.
	OnStateChange func(prev, next State)

	// OnMessage fires for every inbound message after classification.
	OnMessage func(models.StreamMessage)

	// OnError fires for dial and read errors the client will retry.
	OnError func(error)

	// OnGiveUp fires exactly once when MaxAttempts consecutive failures
	// exhaust the retry budget.
	OnGiveUp func()
}

// Client maintains a WebSocket subscription to the purchase event feed
// with automatic reconnection and exponential backoff.
//
// Outbound messages sent while disconnected are queued and flushed in
// order when the connection is next established.
type Client struct {
	cfg       Config
	callbacks Callbacks

	conn   *websocket.Conn
	connMu sync.RWMutex

	stateMu sync.RWMutex
	state   State

	queueMu sync.Mutex
	queue   [][]byte

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	gaveUp bool
}

// NewClient creates a client for the given feed. The client does not
// connect until Run is called.
func NewClient(cfg Config, callbacks Callbacks) (*Client, error) {
	cfg.applyDefaults()

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("stream url scheme %q: want ws or wss", u.Scheme)
	}

	return &Client{
		cfg:       cfg,
		callbacks: callbacks,
		state:     StateDisconnected,
		stopChan:  make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether a live connection exists.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) setState(next State) {
	c.stateMu.Lock()
	prev := c.state
	if prev == next {
		c.stateMu.Unlock()
		return
	}
	c.state = next
	c.stateMu.Unlock()

	metrics.RecordStreamState(int(next))
	logging.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("stream state change")

	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(prev, next)
	}
}

// Run connects and keeps the subscription alive until ctx is canceled or
// Close is called. Repeated dial failures back off exponentially; after
// MaxAttempts consecutive failures the client signals OnGiveUp once and
// returns.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stopChan:
			c.setState(StateDisconnected)
			return nil
		default:
		}

		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
			metrics.RecordStreamReconnect()

			delay := Backoff(c.cfg.BaseBackoff, c.cfg.MaxBackoff, attempt-1)
			logging.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("stream reconnect scheduled")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return ctx.Err()
			case <-c.stopChan:
				c.setState(StateDisconnected)
				return nil
			}
		}

		if err := c.dial(ctx); err != nil {
			attempt++
			logging.Warn().Err(err).Int("attempt", attempt).Msg("stream dial failed")
			if c.callbacks.OnError != nil {
				c.callbacks.OnError(err)
			}

			if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
				c.setState(StateDisconnected)
				c.signalGiveUp()
				return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempt, err)
			}
			continue
		}

		attempt = 0
		c.setState(StateConnected)
		c.flushQueue()

		heartbeatDone := make(chan struct{})
		c.wg.Add(1)
		go c.heartbeatLoop(heartbeatDone)

		// readLoop returns when the connection dies or shutdown begins.
		err := c.readLoop(ctx)
		close(heartbeatDone)
		c.closeConnection()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		select {
		case <-c.stopChan:
			c.setState(StateDisconnected)
			return nil
		default:
		}

		if err != nil {
			logging.Warn().Err(err).Msg("stream connection lost")
			if c.callbacks.OnError != nil {
				c.callbacks.OnError(err)
			}
		}
		attempt = 1
	}
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  c.cfg.ConnectTimeout,
		EnableCompression: true,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream dial (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stream dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	logging.Info().Str("url", c.cfg.URL).Msg("stream connected")
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(2 * c.cfg.HeartbeatInterval)); err != nil {
			logging.Debug().Err(err).Msg("stream set read deadline failed")
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("stream closed by server")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}

		c.handleMessage(data)
	}
}

// handleMessage decodes and classifies one inbound frame, then hands it to
// the message callback.
func (c *Client) handleMessage(data []byte) {
	msg := models.StreamMessage{
		Raw:        append([]byte(nil), data...),
		ReceivedAt: time.Now(),
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		// Non-JSON frames pass through as opaque text.
		msg.Decoded = string(data)
		metrics.RecordStreamMessage("other")
	} else {
		msg.Decoded = decoded

		kind, sale, reason := validation.ClassifySale(decoded)
		switch kind {
		case validation.PayloadValidSale:
			msg.Sale = sale
			metrics.RecordStreamMessage("sale")
		case validation.PayloadMalformed:
			metrics.RecordStreamMessage("malformed")
			logging.Warn().Str("reason", reason).Msg("malformed sale payload dropped")
			return
		default:
			metrics.RecordStreamMessage("other")
		}
	}

	if c.callbacks.OnMessage != nil {
		c.callbacks.OnMessage(msg)
	}
}

// heartbeatLoop sends an application-level ping on a fixed cadence while
// the current connection lives.
func (c *Client) heartbeatLoop(done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			ping, _ := json.Marshal(map[string]interface{}{
				"type":      "ping",
				"timestamp": time.Now().UnixMilli(),
			})
			if err := c.writeMessage(ping); err != nil {
				logging.Debug().Err(err).Msg("stream heartbeat failed")
				return
			}
		}
	}
}

// Send delivers data to the feed. Returns nil when the message went over
// the wire. While disconnected the message is queued for FIFO flush on the
// next connection and Send returns ErrQueued; the oldest queued message is
// dropped once the queue limit is reached.
func (c *Client) Send(data []byte) error {
	if c.State() == StateConnected {
		if err := c.writeMessage(data); err == nil {
			return nil
		}
		// Write raced a dying connection; fall through to the queue.
	}

	c.queueMu.Lock()
	if len(c.queue) >= c.cfg.QueueLimit {
		c.queue = c.queue[1:]
		logging.Warn().Int("limit", c.cfg.QueueLimit).Msg("stream send queue full, dropped oldest")
	}
	c.queue = append(c.queue, append([]byte(nil), data...))
	depth := len(c.queue)
	c.queueMu.Unlock()

	metrics.StreamMessagesQueued.Set(float64(depth))
	return ErrQueued
}

// SendJSON marshals v and sends it.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return c.Send(data)
}

// QueuedMessages returns the current outbound queue depth.
func (c *Client) QueuedMessages() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

func (c *Client) flushQueue() {
	c.queueMu.Lock()
	pending := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for i, data := range pending {
		if err := c.writeMessage(data); err != nil {
			// Connection died mid-flush; requeue the remainder in order.
			c.queueMu.Lock()
			c.queue = append(append([][]byte(nil), pending[i:]...), c.queue...)
			c.queueMu.Unlock()
			return
		}
	}

	if len(pending) > 0 {
		logging.Info().Int("count", len(pending)).Msg("stream queue flushed")
	}
	metrics.StreamMessagesQueued.Set(float64(c.QueuedMessages()))
}

func (c *Client) writeMessage(data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		logging.Debug().Err(err).Msg("stream close message failed")
	}
	if err := c.conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("stream connection close failed")
	}
	c.conn = nil
}

func (c *Client) signalGiveUp() {
	if c.gaveUp {
		return
	}
	c.gaveUp = true
	logging.Error().Int("attempts", c.cfg.MaxAttempts).Msg("stream gave up reconnecting")
	if c.callbacks.OnGiveUp != nil {
		c.callbacks.OnGiveUp()
	}
}

// Close stops the client and tears down the connection. Safe to call more
// than once; returns after all client goroutines have exited.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.closeConnection()
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

// Backoff computes the delay before reconnect attempt n (zero-based):
// base doubled per attempt plus up to one second of jitter, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	if delay+jitter > max {
		return max
	}
	return delay + jitter
}
