package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rickgao/txrelay/internal/cxn"
	"github.com/rickgao/txrelay/internal/order"
	"github.com/rickgao/txrelay/internal/proto"
	"github.com/rickgao/txrelay/internal/route"
)

// OrderType is the price-determination method of a submitted order
// (§4.7).
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stoplimit"
)

// OrderRequest describes one order to submit or change (§4.7). Side is
// derived from Quantity's sign: Buy when Quantity >= 0, else Sell.
type OrderRequest struct {
	Account   string
	Symbol    string
	Quantity  int
	Type      OrderType
	Price     float64
	StopPrice float64
	Tag       string
}

// RenderedCb receives the order's rendered view once the submission
// completes, or an error if it was rejected. It carries no deadline: an
// order whose reply never arrives never fires it.
type RenderedCb func(order.Rendered, error)

// splitAccount breaks "BANK.BRANCH.CUSTOMER.DEPOSIT" into its four
// parts. Malformed accounts yield empty trailing parts, which the
// upstream gateway will itself reject.
func splitAccount(account string) (bank, branch, customer, deposit string) {
	parts := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(account) && len(parts) < 3; i++ {
		if account[i] == '.' {
			parts = append(parts, account[start:i])
			start = i + 1
		}
	}
	parts = append(parts, account[start:])
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2], parts[3]
}

// buildOrderFields renders the canonical field order of §4.7. staged
// and idField/idValue select the tail: a staged ticket carries
// EXIT_VEHICLE=NONE and no route fields; a change carries REFERS_TO_ID
// instead of CLIENT_ORDER_ID.
func (e *Engine) buildOrderFields(req OrderRequest, staged bool, idField, idValue string) ([]proto.KV, error) {
	bank, branch, customer, deposit := splitAccount(req.Account)

	side := "Buy"
	if req.Quantity < 0 {
		side = "Sell"
	}
	qty := req.Quantity
	if qty < 0 {
		qty = -qty
	}

	fields := []proto.KV{
		{Key: "BANK", Value: bank},
		{Key: "BRANCH", Value: branch},
		{Key: "CUSTOMER", Value: customer},
		{Key: "DEPOSIT", Value: deposit},
		{Key: "BUYORSELL", Value: side},
		{Key: "GOOD_UNTIL", Value: "DAY"},
	}

	if staged {
		fields = append(fields, proto.KV{Key: "EXIT_VEHICLE", Value: "NONE"})
	} else {
		fields = append(fields, e.routeCfg.Fields()...)
	}

	fields = append(fields,
		proto.KV{Key: "DISP_NAME", Value: req.Symbol},
		proto.KV{Key: "STYP", Value: "1"},
		proto.KV{Key: "EXCHANGE", Value: e.exchangeFor(req.Symbol)},
	)

	switch req.Type {
	case OrderTypeMarket:
		fields = append(fields, proto.KV{Key: "PRICE_TYPE", Value: "Market"})
	case OrderTypeLimit:
		fields = append(fields,
			proto.KV{Key: "PRICE_TYPE", Value: "AsEntered"},
			proto.KV{Key: "PRICE", Value: formatPrice(req.Price)},
		)
	case OrderTypeStop:
		fields = append(fields,
			proto.KV{Key: "PRICE_TYPE", Value: "Stop"},
			proto.KV{Key: "STOP_PRICE", Value: formatPrice(req.StopPrice)},
		)
	case OrderTypeStopLimit:
		fields = append(fields,
			proto.KV{Key: "PRICE_TYPE", Value: "StopLimit"},
			proto.KV{Key: "STOP_PRICE", Value: formatPrice(req.StopPrice)},
			proto.KV{Key: "PRICE", Value: formatPrice(req.Price)},
		)
	default:
		return nil, fmt.Errorf("engine: unknown order type %q", req.Type)
	}

	fields = append(fields,
		proto.KV{Key: "VOLUME_TYPE", Value: "AsEntered"},
		proto.KV{Key: "VOLUME", Value: fmt.Sprintf("%d", qty)},
	)

	if req.Tag != "" {
		fields = append(fields, proto.KV{Key: "ORDER_TAG", Value: req.Tag})
	}

	fields = append(fields, proto.KV{Key: idField, Value: idValue})

	typ := "UserSubmit"
	if staged {
		typ += "Staged"
	}
	if idField == "REFERS_TO_ID" {
		typ += "Change"
	} else {
		typ += "Order"
	}
	fields = append(fields, proto.KV{Key: "TYPE", Value: typ})

	return fields, nil
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

// submit pokes one order/change/cancel command, arming the ack and
// status callbacks the upstream gateway expects and wiring an ack or
// status failure back through cb; an error from the send itself is
// returned (§4.7).
func (e *Engine) submit(fields []proto.KV, cb RenderedCb) error {
	pool := e.Pool()
	if pool == nil {
		return ErrNotConnected
	}

	ch := pool.Get(accountGatewayService, orderTopic)

	onFail := func(v any, err error) {
		if err != nil && cb != nil {
			cb(order.Rendered{}, err)
		}
	}

	return ch.Send(cxn.SendOpts{
		Verb:     "poke",
		Table:    "ORDERS",
		What:     "*",
		Fields:   fields,
		AckCb:    onFail,
		StatusCb: onFail,
	})
}

// SubmitOrder builds and pokes a new live order (§4.7). cb fires once
// the Order Book folds the server's response row carrying the matching
// CLIENT_ORDER_ID (§4.5 step 2). An unknown account fails cb
// synchronously instead of reaching the wire (§7 "Validation failure",
// rtx.py's submit_order calling verify_account before building the
// order).
func (e *Engine) SubmitOrder(req OrderRequest, cb RenderedCb) error {
	if !e.accounts.IsKnown(req.Account) {
		if cb != nil {
			cb(order.Rendered{}, fmt.Errorf("engine: unknown account %q", req.Account))
		}
		return nil
	}

	coid := uuid.NewString()
	fields, err := e.buildOrderFields(req, false, "CLIENT_ORDER_ID", coid)
	if err != nil {
		return err
	}

	e.books.StageSubmission(coid, fieldsToMap(fields), func(v any, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(order.Rendered{}, err)
			return
		}
		r, _ := v.(order.Rendered)
		cb(r, nil)
	})

	return e.submit(fields, cb)
}

// ChangeOrder builds and pokes a change to an already-known order
// (§4.7). cb fires once the Order Book folds the matching sub-update.
func (e *Engine) ChangeOrder(originalOrderID string, req OrderRequest, cb RenderedCb) error {
	if _, ok := e.books.Get(originalOrderID); !ok {
		return ErrUnknownOrder
	}

	fields, err := e.buildOrderFields(req, false, "REFERS_TO_ID", originalOrderID)
	if err != nil {
		return err
	}

	e.books.StageChange(originalOrderID, func(v any, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(order.Rendered{}, err)
			return
		}
		r, _ := v.(order.Rendered)
		cb(r, nil)
	})

	return e.submit(fields, cb)
}

// CancelOrder sends TYPE=UserSubmitCancel for an already-known order
// (§4.7 "Cancel"). Cancelling an unknown or already-cancelled order
// completes immediately with a synthetic error.
func (e *Engine) CancelOrder(originalOrderID string, cb RenderedCb) error {
	o, ok := e.books.Get(originalOrderID)
	if !ok {
		if cb != nil {
			cb(order.Rendered{}, ErrUnknownOrder)
		}
		return nil
	}
	if o.Status() == "Cancelled" {
		if cb != nil {
			cb(o.Render(), fmt.Errorf("engine: order %s already cancelled", originalOrderID))
		}
		return nil
	}

	pool := e.Pool()
	if pool == nil {
		return ErrNotConnected
	}
	ch := pool.Get(accountGatewayService, orderTopic)

	fields := []proto.KV{
		{Key: "REFERS_TO_ID", Value: originalOrderID},
		{Key: "TYPE", Value: "UserSubmitCancel"},
	}

	e.books.StageChange(originalOrderID, func(v any, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(order.Rendered{}, err)
			return
		}
		r, _ := v.(order.Rendered)
		cb(r, nil)
	})

	return ch.Send(cxn.SendOpts{
		Verb:   "poke",
		Table:  "ORDERS",
		What:   "*",
		Fields: fields,
		AckCb: func(v any, err error) {
			if err != nil && cb != nil {
				cb(order.Rendered{}, err)
			}
		},
		StatusCb: func(v any, err error) {
			if err != nil && cb != nil {
				cb(order.Rendered{}, err)
			}
		},
	})
}

// CancelAll cancels every order whose CURRENT_STATUS is LIVE or PENDING
// (§3 SUPPLEMENTED FEATURES "Global cancel").
func (e *Engine) CancelAll(cb func(cancelled int, err error)) error {
	count := 0
	var firstErr error
	for _, o := range e.books.All() {
		status := o.Fields["CURRENT_STATUS"]
		if status != "LIVE" && status != "PENDING" {
			continue
		}
		if err := e.CancelOrder(o.OriginalOrderID, nil); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	if cb != nil {
		cb(count, firstErr)
	}
	return firstErr
}

// StageTicket creates a staged order ticket keyed by T-<uuid> and
// submits it upstream with TYPE=UserSubmitStagedOrder and
// EXIT_VEHICLE=NONE (§3 SUPPLEMENTED FEATURES "Staged order tickets").
func (e *Engine) StageTicket(req OrderRequest) (*order.Ticket, error) {
	id := "T-" + uuid.NewString()
	fields, err := e.buildOrderFields(req, true, "CLIENT_ORDER_ID", id)
	if err != nil {
		return nil, err
	}

	ticket := e.tickets.Create(id, fieldsToMap(fields))

	if err := e.submit(fields, nil); err != nil {
		return nil, err
	}
	return ticket, nil
}

// SetOrderRoute changes the active route name and parameters at
// runtime (§3 SUPPLEMENTED FEATURES "Order route get/set").
func (e *Engine) SetOrderRoute(name string, params *route.Params) {
	e.routeCfg.Set(name, params)
}

// GetOrderRoute returns the active route name and parameters.
func (e *Engine) GetOrderRoute() (string, *route.Params) {
	return e.routeCfg.Get()
}

// RequestAccountData fetches a named account's field snapshot from the
// DEPOSIT table, caching it in the Account Model on completion
// (§3 SUPPLEMENTED FEATURES "Account data request").
func (e *Engine) RequestAccountData(account string, fields string, cb func(map[string]string, error)) error {
	pool := e.Pool()
	if pool == nil {
		return ErrNotConnected
	}
	if fields == "" {
		fields = "*"
	}

	ch := pool.Get(accountGatewayService, orderTopic)
	return ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: "DEPOSIT",
		What:  fields,
		Where: account,
		ResponseCb: func(v any, err error) {
			if err != nil {
				if cb != nil {
					cb(nil, err)
				}
				return
			}
			rows, _ := v.([]map[string]string)
			var data map[string]string
			if len(rows) > 0 {
				data = rows[0]
			} else {
				data = map[string]string{}
			}
			e.accounts.SetAccountData(account, data)
			if cb != nil {
				cb(data, nil)
			}
		},
	})
}

// RequestPositions issues a plain request against the POSITION table
// (§3 SUPPLEMENTED FEATURES "Position and execution queries").
func (e *Engine) RequestPositions(cb func([]map[string]string, error)) error {
	return e.requestRows("POSITION", cb)
}

// RequestExecutions issues a plain request against the ORDERS table.
func (e *Engine) RequestExecutions(cb func([]map[string]string, error)) error {
	return e.requestRows("ORDERS", cb)
}

func (e *Engine) requestRows(table string, cb func([]map[string]string, error)) error {
	pool := e.Pool()
	if pool == nil {
		return ErrNotConnected
	}
	ch := pool.Get(accountGatewayService, orderTopic)
	return ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: table,
		What:  "*",
		ResponseCb: func(v any, err error) {
			if cb == nil {
				return
			}
			if err != nil {
				cb(nil, err)
				return
			}
			rows, _ := v.([]map[string]string)
			cb(rows, nil)
		},
	})
}

func fieldsToMap(fields []proto.KV) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
