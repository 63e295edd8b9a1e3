// Package venue speaks the exchange's websocket protocol: it dials, performs
// the subscribe handshake and decodes frames into domain shapes. A Client is
// one connection; reconnecting is the session manager's job.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned when using a closed client.
var ErrClosed = errors.New("venue client closed")

// Config configures websocket client behavior.
type Config struct {
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscribe ack.
	SubscribeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the read deadline; no frame within it ends the connection.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the decoded message channel capacity.
	Buffer int
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     5 * time.Second,
		Buffer:           1024,
	}
}

// Client is a single websocket connection to the venue.
type Client struct {
	config Config

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool

	// pending maps channel name to the waiter for its subscribe ack
	pending   map[string]chan error
	pendingMu sync.Mutex

	msgs chan Message

	errMu   sync.Mutex
	readErr error

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to endpoint and starts reading. A nil config uses DefaultConfig.
func Dial(ctx context.Context, endpoint string, config *Config) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		config:  cfg,
		conn:    conn,
		pending: make(map[string]chan error),
		msgs:    make(chan Message, cfg.Buffer),
		done:    make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	c.wg.Add(1)
	go c.readLoop()

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// Subscribe sends a subscribe request and waits for the venue's ack.
func (c *Client) Subscribe(ctx context.Context, channel, symbol string, depth int) error {
	if c.closed.Load() {
		return ErrClosed
	}

	ackCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[channel] = ackCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, channel)
		c.pendingMu.Unlock()
	}()

	req := subscribeRequest{Op: opSubscribe, Channel: channel, Symbol: symbol}
	if channel == ChannelDepth {
		req.Depth = depth
	}
	if err := c.writeJSON(req); err != nil {
		return fmt.Errorf("write subscribe %s: %w", channel, err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case err := <-ackCh:
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("subscribe %s: no ack after %s", channel, c.config.SubscribeTimeout)
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns decoded frames. The channel is closed when the connection
// ends; Err then reports why.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// Err returns the error that ended the read loop, nil while it is running or
// after a clean Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Close closes the connection and waits for the reader to stop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// readLoop decodes frames until the connection fails or is closed.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.msgs)

	for {
		if c.config.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.errMu.Lock()
				c.readErr = fmt.Errorf("websocket read: %w", err)
				c.errMu.Unlock()
			}
			return
		}

		msg := Decode(frame)
		switch msg.Kind {
		case KindAck:
			c.resolve(msg.Channel, nil)
			continue
		case KindError:
			if c.resolve(msg.Channel, msg.Err) {
				continue
			}
		case KindIgnored:
			continue
		}

		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

// resolve completes a pending subscribe. It reports whether one was waiting.
func (c *Client) resolve(channel string, err error) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[channel]
	if ok {
		delete(c.pending, channel)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- err
	}
	return ok
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// the read loop sees the dead connection
				return
			}
		}
	}
}
