package cxn

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/txrelay/internal/callback"
	"github.com/rickgao/txrelay/internal/proto"
)

// Errors surfaced as protocol mismatches (§7).
var (
	ErrUnexpectedAck       = errors.New("unexpected ack")
	ErrAckMismatch         = errors.New("ack mismatch")
	ErrUnexpectedStatus    = errors.New("unexpected status")
	ErrStatusFailed        = errors.New("status failed")
	ErrUnexpectedUpdate    = errors.New("unexpected update")
	ErrPreConnectActionSet = errors.New("a pre-connect action is already pending on this channel")
)

// Sender writes one raw outbound line to the upstream socket.
type Sender func(line string) error

// UpdateHandler receives every row of a long-lived advise subscription
// until the server sends OnTerminate, at which point it is invoked once
// more with a nil row to signal termination (§4.2).
type UpdateHandler func(ch *Channel, row map[string]string)

// SendOpts describes one verb dispatched on a Channel (§4.2 table).
type SendOpts struct {
	Verb    string // request, advise, adviserequest, unadvise, poke, execute, terminate
	Table   string
	What    string
	Where   string
	Fields  []proto.KV // poke payload
	Command string     // execute
	Code    string     // terminate

	AckCb         callback.Continuation
	ResponseCb    callback.Continuation // request, adviserequest
	StatusCb      callback.Continuation // advise, adviserequest, unadvise, poke
	UpdateHandler UpdateHandler         // advise, adviserequest
}

// Channel is a logical session bound to one (service, topic) pair,
// multiplexed over the single upstream socket (§3 Channel).
type Channel struct {
	ID      string
	Service string
	Topic   string

	send   Sender
	logger *slog.Logger

	onReady func(*Channel) // returns the channel to its idle slot
	onError func(*Channel, error)

	mu sync.Mutex

	connected bool

	ackPending string
	ackCb      callback.Continuation

	responsePending bool
	responseCb      callback.Continuation
	rows            []map[string]string

	statusPending string
	statusCb      callback.Continuation

	updateCb      callback.Continuation
	updateHandler UpdateHandler

	onConnectAction *SendOpts
}

// Key is the composite (service, topic) identity idle channels are
// pooled under.
func Key(service, topic string) string {
	return service + ";" + topic
}

// newChannel constructs a Channel and immediately issues its connect
// handshake (§4.2). Only the Pool should call this.
func newChannel(id, service, topic string, send Sender, logger *slog.Logger, onReady func(*Channel), onError func(*Channel, error)) *Channel {
	c := &Channel{
		ID:      id,
		Service: service,
		Topic:   topic,
		send:    send,
		logger:  logger,
		onReady: onReady,
		onError: onError,
	}
	c.mu.Lock()
	c.statusPending = proto.StatusOnInitAck
	c.mu.Unlock()

	if err := send(proto.Connect(id, service, topic)); err != nil {
		c.fail(fmt.Errorf("connect %s: %w", id, err))
	}
	return c
}

// Key returns this channel's (service, topic) pool key.
func (c *Channel) Key() string {
	return Key(c.Service, c.Topic)
}

// Send dispatches a verb on this channel (§4.2). If the channel has not
// yet received its OnInitAck, the request is deferred until then; a
// second pre-connect Send is rejected with ErrPreConnectActionSet
// (§9 "Pre-connect replay").
func (c *Channel) Send(opts SendOpts) error {
	c.mu.Lock()
	if !c.connected {
		if c.onConnectAction != nil {
			c.mu.Unlock()
			return ErrPreConnectActionSet
		}
		o := opts
		c.onConnectAction = &o
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dispatch(opts)
}

// dispatch actually builds and writes the wire command, arming the
// pending slots the verb expects.
func (c *Channel) dispatch(opts SendOpts) error {
	ack, ok := proto.AckFor(opts.Verb)
	if !ok {
		return fmt.Errorf("cxn: unknown verb %q", opts.Verb)
	}

	var line string
	switch opts.Verb {
	case "poke":
		line = proto.Poke(c.ID, opts.Table, opts.What, opts.Where, opts.Fields)
	case "execute":
		line = proto.Execute(c.ID, opts.Command)
	case "terminate":
		line = proto.Terminate(c.ID, opts.Code)
	default:
		line = proto.Command(opts.Verb, c.ID, opts.Table, opts.What, opts.Where)
	}

	c.mu.Lock()
	c.ackPending = ack
	c.ackCb = opts.AckCb
	switch opts.Verb {
	case "request":
		c.responsePending = true
		c.responseCb = opts.ResponseCb
		c.rows = nil
	case "adviserequest":
		c.responsePending = true
		c.responseCb = opts.ResponseCb
		c.rows = nil
		c.statusPending = proto.StatusOnOtherAck
		c.statusCb = opts.StatusCb
		c.updateHandler = opts.UpdateHandler
	case "advise":
		c.statusPending = proto.StatusOnOtherAck
		c.statusCb = opts.StatusCb
		c.updateHandler = opts.UpdateHandler
	case "unadvise", "poke":
		c.statusPending = proto.StatusOnOtherAck
		c.statusCb = opts.StatusCb
	}
	c.mu.Unlock()

	if err := c.send(line); err != nil {
		return fmt.Errorf("cxn: send %s: %w", opts.Verb, err)
	}
	return nil
}

// HandleAck processes an inbound ack frame (§4.2).
func (c *Channel) HandleAck(msg string) {
	c.mu.Lock()
	pending := c.ackPending
	cb := c.ackCb
	respCb := c.responseCb
	mismatch := pending == "" || pending != msg
	if !mismatch {
		c.ackPending = ""
		c.ackCb = nil
	}
	c.mu.Unlock()

	if mismatch {
		var err error
		if pending == "" {
			err = fmt.Errorf("%w: channel %s got ack %q with none pending", ErrUnexpectedAck, c.ID, msg)
		} else {
			err = fmt.Errorf("%w: channel %s expected %q, got %q", ErrAckMismatch, c.ID, pending, msg)
		}
		c.raise(err)
		if respCb != nil {
			respCb(nil, err)
		}
		c.settle()
		return
	}

	if cb != nil {
		cb(msg, nil)
	}
	c.settle()
}

// HandleResponse processes an inbound response frame (§4.2).
func (c *Channel) HandleResponse(row map[string]string, complete bool) {
	c.mu.Lock()
	if row != nil {
		c.rows = append(c.rows, row)
	}
	var fire callback.Continuation
	var rows []map[string]string
	if complete {
		fire = c.responseCb
		rows = c.rows
		c.responsePending = false
		c.responseCb = nil
		c.rows = nil
	}
	c.mu.Unlock()

	if fire != nil {
		fire(rows, nil)
	}
	c.settle()
}

// HandleStatus processes an inbound status frame (§4.2).
func (c *Channel) HandleStatus(msg, status string) {
	c.mu.Lock()
	pending := c.statusPending
	hasHandler := c.updateHandler != nil

	if pending != msg {
		respCb := c.responseCb
		c.mu.Unlock()

		err := fmt.Errorf("%w: channel %s expected %q, got %q", ErrUnexpectedStatus, c.ID, pending, msg)
		c.raise(err)

		if hasHandler && msg == proto.StatusOnTerminate {
			c.mu.Lock()
			handler := c.updateHandler
			c.mu.Unlock()
			if handler != nil {
				handler(c, nil)
			}
			c.clearAdvise()
			if respCb != nil {
				respCb(nil, err)
			}
		}
		c.settle()
		return
	}

	if status != proto.StatusOK {
		cb := c.statusCb
		c.ackPending = ""
		c.statusPending = ""
		c.statusCb = nil
		c.mu.Unlock()

		err := fmt.Errorf("%w: channel %s status %q = %q", ErrStatusFailed, c.ID, msg, status)
		c.raise(err)
		if cb != nil {
			cb(nil, err)
		}
		c.settle()
		return
	}

	// status == "1": success
	cb := c.statusCb
	wasInit := msg == proto.StatusOnInitAck
	if !hasHandler {
		c.statusPending = ""
	}
	c.statusCb = nil

	var replay *SendOpts
	if wasInit {
		c.connected = true
		replay = c.onConnectAction
		c.onConnectAction = nil
	}
	c.mu.Unlock()

	if cb != nil {
		cb(msg, nil)
	}
	if replay != nil {
		if err := c.dispatch(*replay); err != nil {
			c.raise(err)
		}
	}
	c.settle()
}

// HandleUpdate processes an inbound update frame (§4.2).
func (c *Channel) HandleUpdate(row map[string]string) {
	c.mu.Lock()
	oneShot := c.updateCb
	c.updateCb = nil
	handler := c.updateHandler
	c.mu.Unlock()

	switch {
	case oneShot != nil:
		oneShot(row, nil)
	case handler != nil:
		handler(c, row)
	default:
		c.raise(fmt.Errorf("%w: channel %s", ErrUnexpectedUpdate, c.ID))
	}
	c.settle()
}

// ready reports whether the channel has none of its pending slots set
// (§3 Channel invariant).
func (c *Channel) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ackPending == "" &&
		!c.responsePending &&
		c.statusPending == "" &&
		c.statusCb == nil &&
		c.updateCb == nil &&
		c.updateHandler == nil
}

// settle recomputes readiness after every inbound message and returns
// the channel to its idle slot once it becomes ready (§4.2 "After every
// inbound message...").
func (c *Channel) settle() {
	if c.ready() && c.onReady != nil {
		c.onReady(c)
	}
}

func (c *Channel) raise(err error) {
	c.logger.Warn("cxn protocol error", "channel", c.ID, "service", c.Service, "topic", c.Topic, "error", err)
	if c.onError != nil {
		c.onError(c, err)
	}
}

func (c *Channel) fail(err error) {
	c.raise(err)
}

// SetUpdateCallback arms a one-shot update continuation, used by a
// caller awaiting exactly one update row outside of an active advise.
func (c *Channel) SetUpdateCallback(fn callback.Continuation) {
	c.mu.Lock()
	c.updateCb = fn
	c.mu.Unlock()
}

// AwaitingAdvise reports whether a long-lived advise handler is active.
func (c *Channel) AwaitingAdvise() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateHandler != nil
}

// clearAdvise detaches the update handler, e.g. after a fatal
// termination has already been delivered once (§4.2 OnTerminate path).
func (c *Channel) clearAdvise() {
	c.mu.Lock()
	c.updateHandler = nil
	c.mu.Unlock()
}
