package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/account"
	"github.com/rickgao/txrelay/internal/callback"
	"github.com/rickgao/txrelay/internal/config"
	"github.com/rickgao/txrelay/internal/cxn"
	"github.com/rickgao/txrelay/internal/metrics"
	"github.com/rickgao/txrelay/internal/order"
	"github.com/rickgao/txrelay/internal/route"
	"github.com/rickgao/txrelay/internal/symbol"
)

// Status is the connection status enum broadcast downstream as
// "connection-status-changed: <status>" (§6).
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusConnecting   Status = "Connecting"
	StatusStartup      Status = "Startup"
	StatusUp           Status = "Up"
	StatusDisconnected Status = "Disconnected"
)

// ErrNotConnected is returned by operations issued while no upstream
// connection is live.
var ErrNotConnected = errors.New("engine: not connected")

// ErrUnknownOrder is returned when an operation names an order id the
// Order Book has never seen.
var ErrUnknownOrder = errors.New("engine: unknown order")

// WatchdogTimeout is how long the upstream may stay disconnected before
// the Engine requests process termination (§5 Watchdog, §8 Boundary).
const WatchdogTimeout = 30 * time.Second

// Emitter broadcasts one line to every connected downstream client
// (§6). Fan-out itself is an external collaborator (§1 Out of scope).
type Emitter func(line string)

// Shutdown requests the supervising process terminate for an external
// restart (§7 Fatal "requests process termination for supervised
// restart").
type Shutdown func(reason string)

// Engine is the single owning value of §9's "Global mutable state"
// design note: every handler below is a method on *Engine rather than
// touching package-level state.
type Engine struct {
	cfg    config.GatewayConfig
	logger *slog.Logger
	emit   Emitter
	shut   Shutdown

	callbacks  *callback.Registry
	metricsReg *metrics.Registry
	books      *order.Book
	tickets    *order.TicketBook
	accounts   *account.Model
	routeCfg   *route.Config
	exchanges  map[string]string // symbol -> primary exchange, else DefaultExchange

	mu             sync.Mutex
	status         Status
	pool           *cxn.Pool
	symbols        *symbol.Table
	disconnectedAt time.Time
	lastMinute     string
	shutdownOnce   sync.Once
}

// DefaultExchange is used for any symbol absent from the primary
// exchange map (§4.7 "EXCHANGE (from primary_exchange_map[symbol] else
// default NYS)").
const DefaultExchange = "NYS"

// New builds an Engine bound to cfg. emit and shut are required;
// logger defaults to slog.Default() when nil, matching the teacher's
// constructor style.
func New(cfg config.GatewayConfig, emit Emitter, shut Shutdown, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	metricsReg := metrics.NewRegistry()
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		emit:       emit,
		shut:       shut,
		callbacks:  callback.NewRegistry(logger, metricsReg),
		metricsReg: metricsReg,
		books:      order.NewBook(),
		tickets:    order.NewTicketBook(),
		accounts:   account.NewModel(),
		routeCfg:   route.NewConfig(cfg.Feed.Route),
		exchanges:  make(map[string]string),
		status:     StatusInitializing,
	}
}

// Pool returns the Channel Pool bound to the current upstream session,
// or nil while disconnected.
func (e *Engine) Pool() *cxn.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

// ConnectionStatus exposes the current status enum (§3 SUPPLEMENTED
// FEATURES "Connection status query").
func (e *Engine) ConnectionStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Accounts exposes the Account Model for callers that need the list
// and current selection directly.
func (e *Engine) Accounts() *account.Model {
	return e.accounts
}

// Books exposes the Order Book for read-only callers (positions/order
// listing downstream RPCs).
func (e *Engine) Books() *order.Book {
	return e.books
}

// Tickets exposes the Ticket Book.
func (e *Engine) Tickets() *order.TicketBook {
	return e.tickets
}

// Metrics exposes the Callback Registry's metrics for an operator
// status RPC.
func (e *Engine) Metrics() *metrics.Registry {
	return e.metricsReg
}

// SetExchange records the primary exchange for a symbol, overriding
// DefaultExchange for order submission (§4.7).
func (e *Engine) SetExchange(symbol, exchange string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchanges[symbol] = exchange
}

func (e *Engine) exchangeFor(sym string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ex, ok := e.exchanges[sym]; ok && ex != "" {
		return ex
	}
	return DefaultExchange
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	e.emit(fmt.Sprintf("connection-status-changed: %s", s))
}

// OnConnect is the dispatch.ConnectHandler: it adopts a fresh Channel
// Pool for the new session and rebuilds the Symbol Table around it,
// since channels and their advises do not survive a reconnect (§9
// "Event loop vs threads").
func (e *Engine) OnConnect(pool *cxn.Pool) {
	e.mu.Lock()
	e.pool = pool
	e.disconnectedAt = time.Time{}
	e.symbols = symbol.NewTable(
		symbol.Config{EnableTicker: e.cfg.Feed.EnableTicker, EnableHighLow: e.cfg.Feed.EnableHighLow},
		pool, e.callbacks, e.cfg.Timeouts, e.emitSymbolLine,
	)
	e.mu.Unlock()

	e.setStatus(StatusConnecting)
}

// OnDisconnect is the dispatch.DisconnectHandler: it starts the
// watchdog clock (§5 Watchdog).
func (e *Engine) OnDisconnect() {
	e.mu.Lock()
	e.pool = nil
	e.disconnectedAt = time.Now()
	e.mu.Unlock()

	e.setStatus(StatusDisconnected)
}

// OnFatal is the dispatch.FatalHandler: a protocol violation severe
// enough to invalidate the session (currently: an oversized wire line)
// skips the watchdog entirely and force-disconnects immediately (§7
// Fatal).
func (e *Engine) OnFatal(reason string) {
	e.forceDisconnect(reason)
}

// OnProtocolError is the dispatch.ErrorSink: protocol mismatches
// surface downstream as an "error:" line (§6, §7).
func (e *Engine) OnProtocolError(channelID string, err error) {
	e.logger.Warn("engine: protocol error", "channel", channelID, "error", err)
	e.emit(fmt.Sprintf("error: %s %s", channelID, err.Error()))
}

// OnSystem is the dispatch.SystemHandler: it triggers the startup
// query sequence of §4.9 once the upstream reports msg=startup.
func (e *Engine) OnSystem(msg, item string) {
	if msg != "startup" {
		e.logger.Debug("engine: ignoring system frame", "msg", msg, "item", item)
		return
	}

	pool := e.Pool()
	if pool == nil {
		e.logger.Warn("engine: startup system frame with no pool")
		return
	}

	e.setStatus(StatusStartup)
	e.runStartupSequence(pool, time.Now())
}

// emitSymbolLine adapts the Symbol Table's Emitter to the downstream
// fan-out, which in this design is the same string sink used for every
// other event (§6).
func (e *Engine) emitSymbolLine(line string) {
	e.emit(line)
}

// forceDisconnect implements the §7 Fatal error path: it sets
// Disconnected, emits the error downstream, and requests process
// termination. Unlike a plain upstream socket drop it does not wait
// for the watchdog, since the condition itself (lost account list,
// lost order stream, Error 17, oversized line) already invalidates
// derived state.
func (e *Engine) forceDisconnect(reason string) {
	e.logger.Error("engine: force_disconnect", "reason", reason)
	e.mu.Lock()
	e.pool = nil
	if e.disconnectedAt.IsZero() {
		e.disconnectedAt = time.Now()
	}
	e.mu.Unlock()

	e.setStatus(StatusDisconnected)
	e.emit(fmt.Sprintf("error: - %s", reason))
	e.requestShutdown(reason)
}

func (e *Engine) requestShutdown(reason string) {
	e.shutdownOnce.Do(func() {
		if e.shut != nil {
			e.shut(reason)
		}
	})
}

// Tick drives one second of the §5 timer loop: expiry sweep, watchdog
// check, optional $TIME poll, and a per-minute metrics dump. Exported
// so the caller (cmd/gateway, or a test) controls the clock source.
func (e *Engine) Tick(now time.Time) {
	e.callbacks.Sweep(now)
	e.checkWatchdog(now)
	if e.cfg.Feed.EnableSecondsTick {
		e.pollTime(now)
	}
	if now.Second() == 0 {
		e.dumpMetrics()
	}
}

func (e *Engine) checkWatchdog(now time.Time) {
	e.mu.Lock()
	status := e.status
	disc := e.disconnectedAt
	e.mu.Unlock()

	if status != StatusDisconnected || disc.IsZero() {
		return
	}
	if now.Sub(disc) > WatchdogTimeout {
		e.requestShutdown("upstream disconnected beyond watchdog timeout")
	}
}

func (e *Engine) dumpMetrics() {
	for _, line := range e.metricsReg.Dump() {
		e.logger.Info("engine: callback metrics", "line", line)
	}
}
