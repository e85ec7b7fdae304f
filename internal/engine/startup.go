package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/txrelay/internal/cxn"
)

// accountGatewayService and orderTopic are the (service, topic) pair
// every order/account Channel binds to (§4.7 "a channel bound to
// (ACCOUNT_GATEWAY, ORDER)").
const (
	accountGatewayService = "ACCOUNT_GATEWAY"
	orderTopic            = "ORDER"
)

// runStartupSequence implements §4.9's three steps in order, each
// gating the next on the previous succeeding.
func (e *Engine) runStartupSequence(pool *cxn.Pool, now time.Time) {
	ch := pool.Get(accountGatewayService, orderTopic)

	err := ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: "ACCOUNT",
		What:  "*",
		ResponseCb: func(v any, err error) {
			if err != nil {
				e.forceDisconnect(fmt.Sprintf("account query failed: %v", err))
				return
			}
			rows, _ := v.([]map[string]string)
			if len(rows) == 0 {
				e.forceDisconnect("account query returned no accounts")
				return
			}

			accts := make([]string, 0, len(rows))
			for _, row := range rows {
				accts = append(accts, joinAccount(row))
			}
			e.accounts.SetAccounts(accts)
			accountsJSON, _ := json.Marshal(e.accounts.Accounts())
			e.emit("accounts: " + string(accountsJSON))
			e.emit("current-account: " + e.accounts.Current())

			e.startOrdersAdvise(pool, ch)
		},
	})
	if err != nil {
		e.forceDisconnect(fmt.Sprintf("account query send failed: %v", err))
	}
}

func joinAccount(row map[string]string) string {
	return strings.Join([]string{row["BANK"], row["BRANCH"], row["CUSTOMER"], row["DEPOSIT"]}, ".")
}

// startOrdersAdvise opens step 2's long-lived ORDERS advise on
// adviseCh, the channel whose account request just completed, then
// issues step 3's initial populating request (§4.9).
func (e *Engine) startOrdersAdvise(pool *cxn.Pool, adviseCh *cxn.Channel) {
	err := adviseCh.Send(cxn.SendOpts{
		Verb:  "advise",
		Table: "ORDERS",
		What:  "*",
		UpdateHandler: func(c *cxn.Channel, row map[string]string) {
			if row == nil {
				e.forceDisconnect("API Order Status ADVISE on ORDERS terminated")
				return
			}
			e.handleOrderRow(row)
		},
	})
	if err != nil {
		e.forceDisconnect(fmt.Sprintf("orders advise send failed: %v", err))
		return
	}

	e.requestInitialOrders(pool)
}

func (e *Engine) requestInitialOrders(pool *cxn.Pool) {
	ch := pool.Get(accountGatewayService, orderTopic)
	err := ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: "ORDERS",
		What:  "*",
		ResponseCb: func(v any, err error) {
			if err != nil {
				e.logger.Warn("engine: initial orders request failed", "error", err)
				e.setStatus(StatusUp)
				return
			}
			rows, _ := v.([]map[string]string)
			for _, row := range rows {
				e.handleOrderRow(row)
			}
			e.setStatus(StatusUp)
		},
	})
	if err != nil {
		e.logger.Warn("engine: initial orders request send failed", "error", err)
		e.setStatus(StatusUp)
	}
}

// handleOrderRow folds one order row into the Order Book and relays
// any resulting change event downstream (§4.5, §6).
func (e *Engine) handleOrderRow(row map[string]string) {
	ev, err := e.books.ApplyRow(row, time.Now())
	if err != nil {
		e.logger.Warn("engine: order row rejected", "error", err)
		return
	}
	if ev == nil {
		return
	}

	e.emit(fmt.Sprintf("order.%s %s %s %s", ev.PermID, ev.Account, ev.Type, ev.Status))
	if ev.ReportError {
		e.emit(fmt.Sprintf("error: %s order %s reported status %s", ev.PermID, ev.Type, ev.Status))
	}
}
