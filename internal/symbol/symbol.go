package symbol

import (
	"fmt"

	"github.com/rickgao/txrelay/internal/field"
)

// Upstream field names carried on a LIVEQUOTE init snapshot and advise
// tick (§4.6).
const (
	FieldDispName  = "DISP_NAME"
	FieldSymbolErr = "SYMBOL_ERROR"
	FieldLast      = "TRDPRC_1"
	FieldTradeSize = "TRDVOL_1"
	FieldVolume    = "ACVOL_1"
	FieldBid       = "BID"
	FieldBidSize   = "BIDSIZE"
	FieldAsk       = "ASK"
	FieldAskSize   = "ASKSIZE"
	FieldHigh      = "HIGH_1"
	FieldLow       = "LOW_1"
)

// Quote is the latest bid/ask snapshot for a symbol.
type Quote struct {
	Bid     float64
	BidSize int
	Ask     float64
	AskSize int
}

// Trade is the latest trade-side snapshot for a symbol.
type Trade struct {
	Last   float64
	Size   int
	Volume int
	High   float64
	Low    float64
}

// Symbol tracks one subscribed upstream quote stream and the set of
// downstream clients watching it (§3 Symbol).
type Symbol struct {
	Name        string
	FullName    string
	InitPayload map[string]string

	clients map[string]struct{}

	Quote Quote
	Trade Trade

	lastQuoteLine string
}

func newSymbol(name string) *Symbol {
	return &Symbol{Name: name, clients: make(map[string]struct{})}
}

// Clients returns the current subscriber set.
func (s *Symbol) Clients() []string {
	out := make([]string, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Symbol) addClient(client string) {
	s.clients[client] = struct{}{}
}

func (s *Symbol) removeClient(client string) {
	delete(s.clients, client)
}

func (s *Symbol) empty() bool {
	return len(s.clients) == 0
}

// applyInitSnapshot records the LIVEQUOTE request response and reports
// whether it carried SYMBOL_ERROR (§4.6 "complete the add-symbol
// callback with true iff the init snapshot did not carry SYMBOL_ERROR").
func (s *Symbol) applyInitSnapshot(row map[string]string) (ok bool) {
	s.InitPayload = row
	if name := row[FieldDispName]; name != "" {
		s.FullName = name
	}
	_, hasErr := row[FieldSymbolErr]
	return !hasErr
}

// Tick captures one advise row's classification (§4.6).
type Tick struct {
	TradeChanged bool
	QuoteLine    string // non-empty and new iff a quote.* event should fire
}

// applyTick folds one advise row into the symbol's quote/trade state,
// given the two feature gates this table was configured with. Advise
// rows are partial by nature (§4.6): only fields actually present in
// row are merged in, exactly as the upstream's own field parser gates
// each field by presence before mutating state, so a tick carrying
// only quote fields (or only trade fields) never zeroes the other
// side's unrelated values.
func (s *Symbol) applyTick(row map[string]string, tickerEnabled, highLowEnabled bool) Tick {
	newTrade := s.Trade
	if v, ok := row[FieldLast]; ok {
		newTrade.Last = field.Float(v)
	}
	if v, ok := row[FieldTradeSize]; ok {
		newTrade.Size = field.Int(v)
	}
	if v, ok := row[FieldVolume]; ok {
		newTrade.Volume = field.Int(v)
	}
	if highLowEnabled {
		if v, ok := row[FieldHigh]; ok {
			newTrade.High = field.Float(v)
		}
		if v, ok := row[FieldLow]; ok {
			newTrade.Low = field.Float(v)
		}
	}
	tradeChanged := newTrade != s.Trade
	s.Trade = newTrade

	var tick Tick
	tick.TradeChanged = tradeChanged

	if tickerEnabled {
		newQuote := s.Quote
		if v, ok := row[FieldBid]; ok {
			newQuote.Bid = field.Float(v)
		}
		if v, ok := row[FieldBidSize]; ok {
			newQuote.BidSize = field.Int(v)
		}
		if v, ok := row[FieldAsk]; ok {
			newQuote.Ask = field.Float(v)
		}
		if v, ok := row[FieldAskSize]; ok {
			newQuote.AskSize = field.Int(v)
		}
		s.Quote = newQuote
		line := quoteLine(newQuote)
		if line != s.lastQuoteLine {
			tick.QuoteLine = line
			s.lastQuoteLine = line
		}
	}

	return tick
}

// quoteLine renders the "<bid> <bidsize> <ask> <asksize>" suffix of a
// quote.<sym> downstream event (§6).
func quoteLine(q Quote) string {
	return fmt.Sprintf("%.2f %d %.2f %d", q.Bid, q.BidSize, q.Ask, q.AskSize)
}
