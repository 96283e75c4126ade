package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/wslink/internal/version"
)

// Channel is a single duplex connection produced by a Dialer.
//
// Messages delivers every inbound frame in arrival order and is closed when
// the channel terminates, whether locally or remotely. If termination was
// not caused by Close, the cause is available on Errors before Messages is
// closed.
type Channel interface {
	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Close gracefully closes the connection. Safe to call more than once.
	Close() error

	// Messages returns a channel of ALL inbound frames.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel carrying at most one terminal error.
	Errors() <-chan error
}

// Dialer opens Channels. It is the Manager's connection factory.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Channel, error)
}

// DialerFunc is a function adapter for Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Channel, error) {
	return f(ctx, endpoint)
}

// wsDialer dials WebSocket channels with gorilla/websocket.
type wsDialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a WebSocket Dialer.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &wsDialer{cfg: cfg, logger: logger}
}

// Dial establishes the WebSocket connection and starts its read loop.
func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if d.cfg.Header != nil {
		extra, err := d.cfg.Header()
		if err != nil {
			return nil, fmt.Errorf("build handshake headers: %w", err)
		}
		for k, vs := range extra {
			for _, v := range vs {
				header.Add(k, v)
			}
		}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	c := &client{
		cfg:      d.cfg,
		logger:   d.logger,
		conn:     conn,
		messages: make(chan TimestampedMessage, d.cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	c.logger.Debug("websocket connected", "url", endpoint)
	return c, nil
}

// client implements Channel over a *websocket.Conn.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Send writes raw bytes as a text frame.
func (c *client) Send(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure frame and closes the socket.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Signal read loop to stop
	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// readLoop forwards frames until the connection fails or is closed.
// A full messages channel applies backpressure; frames are never dropped.
func (c *client) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				c.errors <- err
			}
			return
		}

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}
