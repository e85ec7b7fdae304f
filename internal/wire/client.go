package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/proto"
)

// MaxLineBytes bounds a single newline-delimited frame. A line longer
// than this is treated as a protocol violation and forces a disconnect
// (§4.1).
const MaxLineBytes = 16 * 1024 * 1024

// Sender writes one newline-terminated frame to the wire. A Channel
// holds onto the Sender handed to it at connect time; once the
// connection drops, calls against a stale Sender return ErrNotConnected.
type Sender func(line string) error

// ErrNotConnected is returned by a Sender captured from a connection
// that has since been closed.
var ErrNotConnected = fmt.Errorf("wire: not connected")

// Handler receives the lifecycle events of the Wire Client. OnConnect
// hands the Dispatcher a fresh Sender for the new session; OnDisconnect
// tells it the Sender it was holding is now dead; OnFrame delivers one
// decoded inbound frame; OnFatal reports a protocol violation severe
// enough to invalidate the session outright (currently: a line beyond
// MaxLineBytes), ahead of and distinct from the ordinary OnDisconnect
// that follows the socket actually closing.
type Handler interface {
	OnConnect(send Sender)
	OnDisconnect()
	OnFrame(frame proto.Inbound)
	OnFatal(reason string)
}

// Config configures the Wire Client's target address, reconnect
// backoff and framing limits.
type Config struct {
	Address        string
	DialTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxLineBytes   int
}

// DefaultConfig returns the backoff schedule from §4.1: 15s initial,
// doubling, capped at 60s, reset on a successful connect.
func DefaultConfig(address string) Config {
	return Config{
		Address:        address,
		DialTimeout:    10 * time.Second,
		InitialBackoff: 15 * time.Second,
		MaxBackoff:     60 * time.Second,
		MaxLineBytes:   MaxLineBytes,
	}
}

// Client is the single reconnecting TCP socket to the upstream
// gateway. It owns no protocol semantics beyond framing; decoding and
// routing belong to the Dispatcher reached through Handler.
type Client struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	dial func(ctx context.Context) (net.Conn, error)

	mu   sync.Mutex
	conn net.Conn
}

// NewClient builds a Wire Client dialing cfg.Address over TCP.
func NewClient(cfg Config, handler Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxLineBytes == 0 {
		cfg.MaxLineBytes = MaxLineBytes
	}
	c := &Client{cfg: cfg, handler: handler, logger: logger}
	c.dial = func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", cfg.Address)
	}
	return c
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
// It never returns a non-nil error except ctx.Err() on cancellation.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.InitialBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("wire connect failed", "address", c.cfg.Address, "error", err, "retry_in", backoff)
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		c.logger.Info("wire connected", "address", c.cfg.Address)
		backoff = c.cfg.InitialBackoff

		c.runSession(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runSession owns one live connection: it hands the handler a Sender,
// reads frames until the connection ends, then tells the handler the
// Sender is dead. It returns once the session is over.
func (c *Client) runSession(ctx context.Context, conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.handler.OnDisconnect()
	}()

	sessionDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()
	defer close(sessionDone)

	var writeMu sync.Mutex
	send := func(line string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		c.mu.Lock()
		live := c.conn == conn
		c.mu.Unlock()
		if !live {
			return ErrNotConnected
		}
		if _, err := fmt.Fprintln(conn, line); err != nil {
			return fmt.Errorf("wire: write: %w", err)
		}
		return nil
	}

	c.handler.OnConnect(send)

	scanner := bufio.NewScanner(conn)
	// bufio.Scanner accepts tokens up to the larger of cap(buf) and max,
	// so the initial buffer must not exceed MaxLineBytes.
	scanner.Buffer(make([]byte, 0, min(64*1024, c.cfg.MaxLineBytes)), c.cfg.MaxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame, err := proto.Decode(line)
		if err != nil {
			c.logger.Warn("wire: dropping malformed frame", "error", err)
			continue
		}
		c.handler.OnFrame(frame)
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("wire: session ended", "error", err)
		if errors.Is(err, bufio.ErrTooLong) {
			c.handler.OnFatal(fmt.Sprintf("wire: frame exceeded %d bytes", c.cfg.MaxLineBytes))
		}
	}
}

// Close tears down the current connection, if any, forcing an
// immediate reconnect attempt rather than waiting for a read error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
