package callback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/config"
	"github.com/rickgao/txrelay/internal/metrics"
)

// Purpose names the per-purpose lists a Callback can be filed under
// (§4.4). These mirror the original source's separate callback lists
// (positions, orders, executions, accounts, …) rather than collapsing
// them into one bag, so a sweep or inspection of one purpose never
// touches another.
type Purpose string

const (
	PurposePositions   Purpose = "positions"
	PurposeOrders      Purpose = "orders"
	PurposeExecutions  Purpose = "executions"
	PurposeAccounts    Purpose = "accounts"
	PurposeTickets     Purpose = "tickets"
	PurposeAddSymbol   Purpose = "add-symbol"
	PurposeOrderStatus Purpose = "order-status"
	PurposeSetAccount  Purpose = "set-account"
	PurposeAccountReq  Purpose = "account-request"
	PurposeCancel      Purpose = "cancel"
	PurposeBarData     Purpose = "bardata"
	PurposeTimer       Purpose = "timer"
)

// Registry owns every outstanding Callback, grouped by Purpose, and
// sweeps them for expiry once per second (§4.4, §5).
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Registry

	mu   sync.Mutex
	byID map[string]*Callback
	list map[Purpose][]*Callback
}

// NewRegistry creates an empty Callback Registry. metrics may be nil to
// disable timing metrics (e.g. in tests); logger defaults to
// slog.Default() when nil, matching the teacher's constructor style.
func NewRegistry(logger *slog.Logger, m *metrics.Registry) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		metrics: m,
		byID:    make(map[string]*Callback),
		list:    make(map[Purpose][]*Callback),
	}
}

// Register allocates a Callback with the label's configured deadline,
// files it under purpose, and returns it. now is passed in rather than
// read from time.Now() so callers (and the engine's single timer
// source) control the clock.
func (r *Registry) Register(purpose Purpose, id string, label config.Label, now time.Time, deadline time.Duration, fn Continuation) *Callback {
	cb := New(id, label, now, deadline, fn)

	r.mu.Lock()
	r.byID[id] = cb
	r.list[purpose] = append(r.list[purpose], cb)
	r.mu.Unlock()

	return cb
}

// ByID looks up a still-tracked callback by id.
func (r *Registry) ByID(id string) (*Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.byID[id]
	return cb, ok
}

// Sweep examines every list for callbacks past their deadline, expiring
// each one exactly once, and drops callbacks that finished (by any
// means) on the pass after they finished. Called once per second by the
// engine's timer loop (§4.4, §5).
func (r *Registry) Sweep(now time.Time) {
	r.mu.Lock()
	purposes := make([]Purpose, 0, len(r.list))
	for p := range r.list {
		purposes = append(purposes, p)
	}
	r.mu.Unlock()

	for _, p := range purposes {
		r.sweepPurpose(p, now)
	}
}

func (r *Registry) sweepPurpose(p Purpose, now time.Time) {
	r.mu.Lock()
	entries := r.list[p]
	r.mu.Unlock()

	kept := entries[:0:0]
	for _, cb := range entries {
		expiredNow := false
		if !cb.Done() && now.After(cb.Deadline) {
			elapsed := now.Sub(cb.Start)
			cb.expire()
			expiredNow = true
			r.record(cb.Label, elapsed, true)
			r.logger.Warn("callback expired", "purpose", p, "id", cb.ID, "label", cb.Label)
		}
		if !cb.Done() || expiredNow {
			kept = append(kept, cb)
		}
	}

	r.mu.Lock()
	r.list[p] = kept
	for _, cb := range entries {
		if cb.Done() && !contains(kept, cb) {
			delete(r.byID, cb.ID)
		}
	}
	r.mu.Unlock()
}

func contains(list []*Callback, cb *Callback) bool {
	for _, c := range list {
		if c == cb {
			return true
		}
	}
	return false
}

func (r *Registry) record(label config.Label, elapsed time.Duration, expired bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.Record(label, elapsed.Milliseconds(), expired)
}

// CompleteAndRecord fires cb.Complete(value) and, if this call actually
// triggered completion, records its elapsed time into metrics. now is
// the completion instant.
func (r *Registry) CompleteAndRecord(cb *Callback, now time.Time, value any) bool {
	fired := cb.Complete(value)
	if fired {
		r.record(cb.Label, now.Sub(cb.Start), false)
	} else {
		r.logger.Warn("callback completed after it already finished", "id", cb.ID, "label", cb.Label)
	}
	return fired
}

// FailAndRecord is CompleteAndRecord's counterpart for synchronous
// failures (protocol mismatches, validation errors).
func (r *Registry) FailAndRecord(cb *Callback, now time.Time, err error) bool {
	fired := cb.Fail(err)
	if fired {
		r.record(cb.Label, now.Sub(cb.Start), false)
	}
	return fired
}
