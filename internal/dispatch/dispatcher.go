package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/txrelay/internal/cxn"
	"github.com/rickgao/txrelay/internal/proto"
	"github.com/rickgao/txrelay/internal/wire"
)

// SystemHandler reacts to an inbound "system" frame, e.g. the startup
// trigger of §4.9.
type SystemHandler func(msg, item string)

// ConnectHandler is invoked with a freshly built Channel Pool every
// time the Wire Client hands over a live Sender. Channels do not
// survive a reconnect (§9 "Event loop vs threads" treats a session as
// owned by a single actor run); the Engine is expected to re-issue its
// startup sequence against the new pool.
type ConnectHandler func(pool *cxn.Pool)

// DisconnectHandler is invoked once the Wire Client's session ends.
type DisconnectHandler func()

// FatalHandler is invoked when the Wire Client reports a protocol
// violation severe enough to force a disconnect and process
// termination (§7 Fatal), ahead of the OnDisconnect that follows the
// socket actually closing.
type FatalHandler func(reason string)

// ErrorSink receives protocol-mismatch errors surfaced by a Channel or
// by the Dispatcher itself, for relay downstream as "error: <id> <msg>"
// (§6, §7).
type ErrorSink func(channelID string, err error)

// Dispatcher implements wire.Handler, fulfilling the "Wire Client
// delivers frames to Dispatcher" control-flow step of §2.
type Dispatcher struct {
	logger *slog.Logger

	onSystem     SystemHandler
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler
	onFatal      FatalHandler
	errorSink    ErrorSink

	mu   sync.Mutex
	pool *cxn.Pool
}

// New builds a Dispatcher. Every argument is required except logger,
// which defaults to slog.Default().
func New(onSystem SystemHandler, onConnect ConnectHandler, onDisconnect DisconnectHandler, onFatal FatalHandler, errorSink ErrorSink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:       logger,
		onSystem:     onSystem,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
		onFatal:      onFatal,
		errorSink:    errorSink,
	}
}

// Pool returns the Channel Pool bound to the current session, or nil
// if the upstream socket is currently disconnected.
func (d *Dispatcher) Pool() *cxn.Pool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool
}

// OnConnect implements wire.Handler: it builds a fresh Channel Pool
// around the new Sender and hands it to the Engine via onConnect.
func (d *Dispatcher) OnConnect(send wire.Sender) {
	pool := cxn.NewPool(cxn.Sender(send), d.logger, d.handleChannelError)

	d.mu.Lock()
	d.pool = pool
	d.mu.Unlock()

	d.onConnect(pool)
}

// OnDisconnect implements wire.Handler: the current pool is dropped so
// late frames from the dead session are not misrouted to it.
func (d *Dispatcher) OnDisconnect() {
	d.mu.Lock()
	d.pool = nil
	d.mu.Unlock()

	d.onDisconnect()
}

// OnFatal implements wire.Handler: it drops the current pool, same as
// OnDisconnect, then forwards the fatal reason to the Engine in place
// of waiting for the watchdog.
func (d *Dispatcher) OnFatal(reason string) {
	d.mu.Lock()
	d.pool = nil
	d.mu.Unlock()

	d.onFatal(reason)
}

// OnFrame implements wire.Handler, routing by frame type (§4.2).
func (d *Dispatcher) OnFrame(frame proto.Inbound) {
	if frame.Type == proto.FrameSystem {
		var data proto.SystemData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			d.logger.Warn("dispatch: malformed system frame", "error", err)
			return
		}
		d.onSystem(data.Msg, data.Item)
		return
	}

	d.routeToChannel(frame)
}

func (d *Dispatcher) routeToChannel(frame proto.Inbound) {
	pool := d.Pool()
	if pool == nil {
		d.logger.Warn("dispatch: frame arrived with no active connection", "id", frame.ID, "type", frame.Type)
		return
	}

	ch, ok := pool.ByID(frame.ID)
	if !ok {
		d.logger.Warn("dispatch: frame for unknown channel", "id", frame.ID, "type", frame.Type)
		d.errorSink(frame.ID, fmt.Errorf("dispatch: unknown channel %q", frame.ID))
		return
	}

	switch frame.Type {
	case proto.FrameAck:
		var data proto.AckData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			d.logger.Warn("dispatch: malformed ack frame", "id", frame.ID, "error", err)
			return
		}
		ch.HandleAck(data.Msg)

	case proto.FrameResponse:
		var data proto.ResponseData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			d.logger.Warn("dispatch: malformed response frame", "id", frame.ID, "error", err)
			return
		}
		ch.HandleResponse(data.Row, data.Complete)

	case proto.FrameStatus:
		var data proto.StatusData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			d.logger.Warn("dispatch: malformed status frame", "id", frame.ID, "error", err)
			return
		}
		ch.HandleStatus(data.Msg, data.Status)

	case proto.FrameUpdate:
		var data proto.UpdateData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			d.logger.Warn("dispatch: malformed update frame", "id", frame.ID, "error", err)
			return
		}
		ch.HandleUpdate(data.Row)

	default:
		d.logger.Warn("dispatch: unrecognized frame type", "type", frame.Type, "id", frame.ID)
	}
}

func (d *Dispatcher) handleChannelError(ch *cxn.Channel, err error) {
	d.errorSink(ch.ID, err)
}
