package downstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Hub accepts TCP connections from trading clients and fans out every
// broadcast line to each of them, unbuffered per recipient (§5
// "Downstream fan-out sends one string per recipient without
// buffering for slow consumers").
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	clients  map[net.Conn]*bufio.Writer
	wg       sync.WaitGroup
}

// NewHub creates a Hub with no active listener. logger defaults to
// slog.Default() when nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[net.Conn]*bufio.Writer),
	}
}

// Start binds addr and begins accepting client connections in the
// background. Accepted connections are registered for broadcast but
// never read from: the downstream RPC/line protocol itself is an
// external collaborator (§1 Out of scope).
func (h *Hub) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("downstream: listen %s: %w", addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("downstream: listening", "addr", addr)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.acceptLoop(ctx, ln)
	}()
	return nil
}

// Stop closes the listener and every registered client connection,
// then waits for the accept loop to exit.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.listener != nil {
		_ = h.listener.Close()
	}
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[net.Conn]*bufio.Writer)
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			h.logger.Warn("downstream: accept error", "error", err)
			return
		}

		h.mu.Lock()
		h.clients[conn] = bufio.NewWriter(conn)
		count := len(h.clients)
		h.mu.Unlock()
		h.logger.Info("downstream: client connected", "remote", conn.RemoteAddr(), "clients", count)

		go h.waitForClose(conn)
	}
}

// waitForClose blocks on a one-byte read so a client that hangs up
// is unregistered promptly rather than only on the next failed write.
func (h *Hub) waitForClose(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			h.unregister(conn)
			return
		}
	}
}

func (h *Hub) unregister(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast writes line, newline-terminated, to every connected
// client, one after another, flushing each write. A write failure
// unregisters that client. A client whose write stalls delays the
// clients written after it (§5).
func (h *Hub) Broadcast(line string) {
	h.mu.Lock()
	targets := make(map[net.Conn]*bufio.Writer, len(h.clients))
	for conn, w := range h.clients {
		targets[conn] = w
	}
	h.mu.Unlock()

	for conn, w := range targets {
		if _, err := w.WriteString(line + "\n"); err != nil {
			h.unregister(conn)
			continue
		}
		if err := w.Flush(); err != nil {
			h.unregister(conn)
		}
	}
}
