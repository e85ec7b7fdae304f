package order

import (
	"sync"
	"time"
)

// Ticket is a staged order prepared before live submission, keyed by
// its client-chosen id T-<uuid> (§3 Ticket, §4.7 "staged order").
// Unlike Order it never gets renamed to a server-assigned id: the
// ticket id is permanent for its lifetime.
type Ticket struct {
	ID    string
	order *Order
}

// Render exposes the ticket's current fields the same way an Order
// renders, since a ticket is "like Order but keyed by T-<uuid>" (§3).
func (t *Ticket) Render() Rendered {
	return t.order.Render()
}

// TicketBook is the parallel structure to Book for staged tickets
// (§2 "Ticket Book").
type TicketBook struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
}

// NewTicketBook creates an empty Ticket Book.
func NewTicketBook() *TicketBook {
	return &TicketBook{tickets: make(map[string]*Ticket)}
}

// Create registers a new ticket with its initial submitted fields.
func (tb *TicketBook) Create(id string, initialFields map[string]string) *Ticket {
	o := newOrder(id)
	for k, v := range initialFields {
		o.Fields[k] = v
	}
	t := &Ticket{ID: id, order: o}

	tb.mu.Lock()
	tb.tickets[id] = t
	tb.mu.Unlock()
	return t
}

// Get looks up a ticket by id.
func (tb *TicketBook) Get(id string) (*Ticket, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tickets[id]
	return t, ok
}

// ApplyRow folds an update row into the ticket identified by its own
// id (tickets never change identity, so this skips the Book's
// promotion steps).
func (tb *TicketBook) ApplyRow(id string, row map[string]string, now time.Time) (bool, bool) {
	tb.mu.Lock()
	t, ok := tb.tickets[id]
	tb.mu.Unlock()
	if !ok {
		return false, false
	}
	return t.order.applyRow(row, now), true
}
