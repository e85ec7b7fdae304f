package cxn

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// Pool registers every active Channel by id and pools idle channels by
// (service, topic) for reuse (§4.3).
type Pool struct {
	send   Sender
	logger *slog.Logger

	onError func(*Channel, error)

	nextID int64

	mu     sync.Mutex
	active map[string]*Channel
	idle   map[string][]*Channel
}

// NewPool creates an empty Channel Pool. onError, if non-nil, is called
// whenever any channel in the pool raises a protocol error.
func NewPool(send Sender, logger *slog.Logger, onError func(*Channel, error)) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		send:    send,
		logger:  logger,
		onError: onError,
		active:  make(map[string]*Channel),
		idle:    make(map[string][]*Channel),
	}
}

// Get returns an idle channel bound to (service, topic) if one exists,
// else constructs a new one, registering it in active (§4.3).
func (p *Pool) Get(service, topic string) *Channel {
	key := Key(service, topic)

	p.mu.Lock()
	if stack := p.idle[key]; len(stack) > 0 {
		ch := stack[len(stack)-1]
		p.idle[key] = stack[:len(stack)-1]
		p.mu.Unlock()
		return ch
	}
	p.mu.Unlock()

	id := strconv.FormatInt(atomic.AddInt64(&p.nextID, 1), 10)
	ch := newChannel(id, service, topic, p.send, p.logger, p.returnIdle, p.onError)

	p.mu.Lock()
	p.active[id] = ch
	p.mu.Unlock()

	return ch
}

// returnIdle is called by a Channel once it becomes ready.
func (p *Pool) returnIdle(ch *Channel) {
	key := ch.Key()
	p.mu.Lock()
	p.idle[key] = append(p.idle[key], ch)
	p.mu.Unlock()
}

// ByID looks up an active channel (used by the Dispatcher to route
// inbound frames, §2, §4.2).
func (p *Pool) ByID(id string) (*Channel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.active[id]
	return ch, ok
}

// Len reports the number of active (ever-created) channels.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
