package symbol

import (
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/callback"
	"github.com/rickgao/txrelay/internal/config"
	"github.com/rickgao/txrelay/internal/cxn"
)

// Service/topic the Symbol Table binds its per-symbol channels to
// (§4.2 Channel is keyed by (service, topic); each symbol gets its own
// channel so its advise subscription can be torn down independently).
const service = "TA_SRV"

// Config gates the optional field extensions to a symbol's advise
// subscription (§4.6, §6 ENABLE_TICKER / ENABLE_HIGH_LOW).
type Config struct {
	EnableTicker  bool
	EnableHighLow bool
}

// Emitter delivers one downstream line (quote.*, trade.*) to every
// connected client; fan-out itself is an external collaborator (§6).
type Emitter func(line string)

// Table is the Symbol Table (§2, §3 Symbol, §4.6).
type Table struct {
	cfg       Config
	pool      *cxn.Pool
	callbacks *callback.Registry
	timeouts  config.TimeoutConfig
	emit      Emitter

	mu      sync.Mutex
	symbols map[string]*Symbol
}

// NewTable creates an empty Symbol Table.
func NewTable(cfg Config, pool *cxn.Pool, callbacks *callback.Registry, timeouts config.TimeoutConfig, emit Emitter) *Table {
	return &Table{
		cfg:       cfg,
		pool:      pool,
		callbacks: callbacks,
		timeouts:  timeouts,
		emit:      emit,
		symbols:   make(map[string]*Symbol),
	}
}

// Enable subscribes client to symbol, issuing the upstream LIVEQUOTE
// init request and advise only on first subscription (§4.6 enable). The
// add-symbol callback is tracked through the Callback Registry under
// the ADDSYMBOL label like every other caller-visible async op (§4.4).
func (t *Table) Enable(sym, client string, now time.Time, done callback.Continuation) {
	t.mu.Lock()
	existing, ok := t.symbols[sym]
	if ok {
		existing.addClient(client)
		t.mu.Unlock()
		done(true, nil)
		return
	}

	s := newSymbol(sym)
	s.addClient(client)
	t.symbols[sym] = s
	t.mu.Unlock()

	id := fmt.Sprintf("addsymbol:%s:%d", sym, now.UnixNano())
	cb := t.callbacks.Register(callback.PurposeAddSymbol, id, config.LabelAddSymbol, now,
		t.timeouts.Deadline(config.LabelAddSymbol), done)

	ch := t.pool.Get(service, sym)
	where := fmt.Sprintf("DISP_NAME=%s", sym)

	ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: "LIVEQUOTE",
		What:  "*",
		Where: where,
		ResponseCb: func(v any, err error) {
			if err != nil {
				cb.Complete(false)
				return
			}
			rows, _ := v.([]map[string]string)
			var row map[string]string
			if len(rows) > 0 {
				row = rows[0]
			}

			t.mu.Lock()
			ok := s.applyInitSnapshot(row)
			t.mu.Unlock()

			if !ok {
				cb.Complete(false)
				return
			}

			t.startAdvise(ch, s, where)
			cb.Complete(true)
		},
	})
}

// startAdvise opens the long-lived advise on the field set §4.6
// specifies, extended per the ticker/high-low feature gates.
func (t *Table) startAdvise(ch *cxn.Channel, s *Symbol, where string) {
	what := FieldLast + "," + FieldTradeSize + "," + FieldVolume
	if t.cfg.EnableTicker {
		what += "," + FieldBid + "," + FieldBidSize + "," + FieldAsk + "," + FieldAskSize
	}
	if t.cfg.EnableHighLow {
		what += "," + FieldHigh + "," + FieldLow
	}

	ch.Send(cxn.SendOpts{
		Verb:  "advise",
		Table: "LIVEQUOTE",
		What:  what,
		Where: where,
		UpdateHandler: func(c *cxn.Channel, row map[string]string) {
			if row == nil {
				return // OnTerminate: caller (dispatch/engine) handles teardown separately
			}
			t.onTick(s, row)
		},
	})
}

func (t *Table) onTick(s *Symbol, row map[string]string) {
	t.mu.Lock()
	if t.symbols[s.Name] != s {
		// Disabled (or replaced): its advise stays live upstream but
		// its ticks are no longer relayed.
		t.mu.Unlock()
		return
	}
	tick := s.applyTick(row, t.cfg.EnableTicker, t.cfg.EnableHighLow)
	name := s.Name
	trade := s.Trade
	t.mu.Unlock()

	if tick.QuoteLine != "" {
		t.emit(fmt.Sprintf("quote.%s:%s", name, tick.QuoteLine))
	}
	if tick.TradeChanged {
		t.emit(fmt.Sprintf("trade.%s:%.2f %d %d", name, trade.Last, trade.Size, trade.Volume))
	}
}

// Disable unsubscribes client from symbol; once its client set is
// empty the Symbol entry is dropped (§3 Symbol invariant, §4.6
// disable). Whether this should also unadvise upstream is an open
// question left unresolved by §9; see DESIGN.md.
func (t *Table) Disable(sym, client string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.symbols[sym]
	if !ok {
		return
	}
	s.removeClient(client)
	if s.empty() {
		delete(t.symbols, sym)
	}
}

// Get returns the current snapshot for a symbol, if subscribed.
func (t *Table) Get(sym string) (*Symbol, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.symbols[sym]
	return s, ok
}
