package order

import (
	"strings"
	"time"

	"github.com/rickgao/txrelay/internal/callback"
	"github.com/rickgao/txrelay/internal/field"
)

// SubUpdate captures one folded update whose per-message ORDER_ID
// differed from the order's own id (§3 Order, §4.5).
type SubUpdate struct {
	ID          string
	Type        string
	FieldsDelta map[string]string
	Time        time.Time
}

// Rendered is the derived view of an Order exposed to callers and
// downstream emission (§3 Order "Derived fields on render").
type Rendered struct {
	PermID       string
	Symbol       string
	Account      string
	Status       string
	Filled       int
	Remaining    int
	AvgFillPrice float64
	Fields       map[string]string
}

// Order is keyed by ORIGINAL_ORDER_ID once known (§3 Order).
type Order struct {
	OriginalOrderID string
	Fields          map[string]string
	SubUpdates      []SubUpdate
	status          string

	subTable map[string]map[string]string
	initCb   callback.Continuation
}

func newOrder(oid string) *Order {
	return &Order{
		OriginalOrderID: oid,
		Fields:          make(map[string]string),
		subTable:        make(map[string]map[string]string),
	}
}

func (o *Order) takeInitCallback() callback.Continuation {
	cb := o.initCb
	o.initCb = nil
	return cb
}

// classify compares row against the last snapshot recorded for its
// ORDER_ID, yielding "new", "changed", or "dup" (§4.5).
func (o *Order) classify(orderID string, row map[string]string) string {
	prev, ok := o.subTable[orderID]
	if !ok {
		return "new"
	}
	if fieldsEqual(prev, row) {
		return "dup"
	}
	return "changed"
}

func fieldsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// applyRow folds one raw update row into the order (§4.5). It reports
// whether the base field map changed, which gates the downstream
// order.* event.
func (o *Order) applyRow(row map[string]string, now time.Time) (changed bool) {
	orderID := row["ORDER_ID"]
	if orderID == "" {
		orderID = o.OriginalOrderID
	}

	classification := o.classify(orderID, row)
	if classification == "dup" {
		return false
	}
	o.subTable[orderID] = copyFields(row)

	before := copyFields(o.Fields)
	for k, v := range row {
		o.Fields[k] = v
	}
	changed = !fieldsEqual(before, o.Fields)

	if orderID != o.OriginalOrderID {
		o.SubUpdates = append(o.SubUpdates, SubUpdate{
			ID:          orderID,
			Type:        row["TYPE"],
			FieldsDelta: delta(before, row),
			Time:        now,
		})
	}

	if status, _ := deriveStatus(o.Fields, o.SubUpdates); status != "" {
		o.status = status
	}
	return changed
}

// delta returns the keys of row whose value differs from before (or is
// new), capturing what this sub-update actually changed.
func delta(before, row map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range row {
		if before[k] != v {
			out[k] = v
		}
	}
	return out
}

// Status returns the order's last-derived status string.
func (o *Order) Status() string {
	return o.status
}

// ReportError reports whether the order's current derived status
// should also raise an alert (§4.5, §7).
func (o *Order) ReportError() bool {
	_, report := deriveStatus(o.Fields, o.SubUpdates)
	return report
}

// Render produces the caller/downstream-facing view of the order
// (§3 Order "Derived fields on render").
func (o *Order) Render() Rendered {
	account := strings.Join([]string{
		o.Fields["BANK"], o.Fields["BRANCH"], o.Fields["CUSTOMER"], o.Fields["DEPOSIT"],
	}, ".")

	r := Rendered{
		PermID:  o.OriginalOrderID,
		Symbol:  o.Fields["DISP_NAME"],
		Account: account,
		Status:  o.status,
		Fields:  copyFields(o.Fields),
	}
	if v, ok := o.Fields["VOLUME_TRADED"]; ok {
		r.Filled = field.Int(v)
	}
	if v, ok := o.Fields["ORDER_RESIDUAL"]; ok {
		r.Remaining = field.Int(v)
	}
	if v, ok := o.Fields["AVG_PRICE"]; ok {
		r.AvgFillPrice = field.Float(v)
	}
	return r
}
