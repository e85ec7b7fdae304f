package order

import (
	"errors"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/callback"
)

// ErrMissingOriginalOrderID is returned when an incoming row lacks
// ORIGINAL_ORDER_ID (§4.5 step 1).
var ErrMissingOriginalOrderID = errors.New("order row missing ORIGINAL_ORDER_ID")

// Event is emitted downstream whenever an order's base fields change
// (§4.5, §6 "order.<permid> <account> <TYPE> <status>").
type Event struct {
	PermID      string
	Account     string
	Type        string
	Status      string
	ReportError bool
}

// Book is the map of ORIGINAL_ORDER_ID to Order, plus the transient
// pending-submission and pending-change indices used to attach a
// caller's callback before the server echoes back a permanent id
// (§3 Order, §4.5, §9 "Ownership of Orders across id rename").
type Book struct {
	mu            sync.Mutex
	orders        map[string]*Order
	pendingByCOID map[string]*Order
	pendingChange map[string]callback.Continuation
}

// NewBook creates an empty Order Book.
func NewBook() *Book {
	return &Book{
		orders:        make(map[string]*Order),
		pendingByCOID: make(map[string]*Order),
		pendingChange: make(map[string]callback.Continuation),
	}
}

// StageSubmission registers a brand-new order under its client-chosen
// id, ahead of the server echoing ORIGINAL_ORDER_ID (§3 "created ...
// on submission (keyed transiently by CLIENT_ORDER_ID)").
func (b *Book) StageSubmission(clientOrderID string, initialFields map[string]string, initCb callback.Continuation) {
	o := newOrder("")
	for k, v := range initialFields {
		o.Fields[k] = v
	}
	o.initCb = initCb

	b.mu.Lock()
	b.pendingByCOID[clientOrderID] = o
	b.mu.Unlock()
}

// StageChange registers a callback against an in-flight change request
// for an already-known order id (§3 "created ... on change (keyed
// transiently by the old id until echo)").
func (b *Book) StageChange(originalOrderID string, initCb callback.Continuation) {
	b.mu.Lock()
	b.pendingChange[originalOrderID] = initCb
	b.mu.Unlock()
}

// Get looks up an order by its permanent id.
func (b *Book) Get(originalOrderID string) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[originalOrderID]
	return o, ok
}

// All returns a snapshot slice of every tracked order.
func (b *Book) All() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out
}

// ApplyRow folds one raw order row into the book, implementing the
// five-step promotion/update algorithm of §4.5.
func (b *Book) ApplyRow(row map[string]string, now time.Time) (*Event, error) {
	oid := row["ORIGINAL_ORDER_ID"]
	if oid == "" {
		return nil, ErrMissingOriginalOrderID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var ord *Order
	var initCb callback.Continuation

	// Step 2: CLIENT_ORDER_ID matches a pending submission.
	if coid := row["CLIENT_ORDER_ID"]; coid != "" {
		if pending, ok := b.pendingByCOID[coid]; ok {
			delete(b.pendingByCOID, coid)
			pending.OriginalOrderID = oid
			b.orders[oid] = pending
			ord = pending
			initCb = pending.takeInitCallback()
		}
	}

	// Step 3: oid matches a pending change.
	if ord == nil {
		if cb, ok := b.pendingChange[oid]; ok {
			delete(b.pendingChange, oid)
			initCb = cb
		}
	}

	// Step 4: oid already tracked.
	if ord == nil {
		if existing, ok := b.orders[oid]; ok {
			ord = existing
		}
	}

	// Step 5: brand-new order, no pending entry matched it.
	if ord == nil {
		ord = newOrder(oid)
		b.orders[oid] = ord
	}

	changed := ord.applyRow(row, now)

	if initCb != nil {
		r := ord.Render()
		initCb(r, nil)
	}

	if !changed {
		return nil, nil
	}

	return &Event{
		PermID:      ord.OriginalOrderID,
		Account:     ord.Render().Account,
		Type:        ord.Fields["TYPE"],
		Status:      ord.status,
		ReportError: ord.ReportError(),
	}, nil
}
