package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/rickgao/txrelay/internal/config"
	"github.com/rickgao/txrelay/internal/cxn"
	"github.com/rickgao/txrelay/internal/order"
	"github.com/rickgao/txrelay/internal/proto"
)

// harness bundles an Engine with a recording Sender/Emitter/Shutdown so
// tests can drive the upstream handshake and inspect what the Engine
// produced.
type harness struct {
	e         *Engine
	pool      *cxn.Pool
	sent      []string
	emitted   []string
	shutdowns []string
}

func newHarness(t *testing.T, cfg config.GatewayConfig) *harness {
	t.Helper()
	h := &harness{}
	send := func(line string) error {
		h.sent = append(h.sent, line)
		return nil
	}
	emit := func(line string) {
		h.emitted = append(h.emitted, line)
	}
	shut := func(reason string) {
		h.shutdowns = append(h.shutdowns, reason)
	}

	h.e = New(cfg, emit, shut, nil)
	h.pool = cxn.NewPool(send, nil, h.e.OnProtocolError)
	h.e.OnConnect(h.pool)
	return h
}

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Feed: config.FeedConfig{Route: "DEMO", Timezone: "UTC"},
	}
}

// connectChannel drives a freshly constructed channel through its
// OnInitAck handshake, replaying whatever pre-connect action it queued.
func connectChannel(ch *cxn.Channel) {
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)
}

// fieldValue extracts one k=v pair's value from a poke command line of
// the form "poke <id> <table>;<what>;<where>!k=v,k=v,...".
func fieldValue(line, key string) string {
	idx := strings.Index(line, "!")
	if idx < 0 {
		return ""
	}
	for _, pair := range strings.Split(line[idx+1:], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] == key {
			return kv[1]
		}
	}
	return ""
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func anyContains(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestStartupSequenceBringsEngineUp(t *testing.T) {
	h := newHarness(t, testConfig())

	h.e.OnSystem("ignored", "")
	if h.e.ConnectionStatus() != StatusConnecting {
		t.Fatalf("unrelated system frame should not change status, got %v", h.e.ConnectionStatus())
	}

	h.e.OnSystem("startup", "SERVER")
	if h.e.ConnectionStatus() != StatusStartup {
		t.Fatalf("status after startup frame = %v, want Startup", h.e.ConnectionStatus())
	}

	// Step 1: account request on channel 1.
	ch1, ok := h.pool.ByID("1")
	if !ok {
		t.Fatal("expected channel 1 to exist after runStartupSequence")
	}
	connectChannel(ch1)

	if len(h.sent) != 2 {
		t.Fatalf("sent = %v, want [connect, request] after OnInitAck replay", h.sent)
	}
	ch1.HandleAck(proto.AckRequest)
	ch1.HandleResponse(map[string]string{"BANK": "A", "BRANCH": "B", "CUSTOMER": "C", "DEPOSIT": "D"}, true)

	if got := h.e.Accounts().Accounts(); len(got) != 1 || got[0] != "A.B.C.D" {
		t.Fatalf("Accounts() = %v, want [A.B.C.D]", got)
	}
	if !contains(h.emitted, `accounts: ["A.B.C.D"]`) {
		t.Errorf("emitted = %v, want an accounts: line", h.emitted)
	}
	if !contains(h.emitted, "current-account: A.B.C.D") {
		t.Errorf("emitted = %v, want a current-account: line", h.emitted)
	}

	// Step 2: long-lived ORDERS advise, reusing channel 1 (now idle).
	if len(h.sent) != 3 {
		t.Fatalf("sent = %v, want advise command appended", h.sent)
	}
	ch1.HandleAck(proto.AckAdvise)
	ch1.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	// Step 3: initial orders request lands on a fresh channel (1 is
	// pinned to the advise and never returns to idle).
	ch2, ok := h.pool.ByID("2")
	if !ok {
		t.Fatal("expected channel 2 for the initial orders request")
	}
	connectChannel(ch2)
	ch2.HandleAck(proto.AckRequest)
	ch2.HandleResponse(map[string]string{
		"ORIGINAL_ORDER_ID": "O1", "BANK": "A", "BRANCH": "B", "CUSTOMER": "C", "DEPOSIT": "D",
		"CURRENT_STATUS": "LIVE", "TYPE": "UserSubmitOrder",
	}, true)

	if h.e.ConnectionStatus() != StatusUp {
		t.Fatalf("status after startup completes = %v, want Up", h.e.ConnectionStatus())
	}
	if !contains(h.emitted, "order.O1 A.B.C.D UserSubmitOrder Pending") {
		t.Errorf("emitted = %v, want the initial order folded and emitted", h.emitted)
	}
}

func TestFatalOrdersAdviseTerminationForcesDisconnect(t *testing.T) {
	h := newHarness(t, testConfig())
	h.e.OnSystem("startup", "SERVER")

	ch1, _ := h.pool.ByID("1")
	connectChannel(ch1)
	ch1.HandleAck(proto.AckRequest)
	ch1.HandleResponse(map[string]string{"BANK": "A", "BRANCH": "B", "CUSTOMER": "C", "DEPOSIT": "D"}, true)

	ch1.HandleAck(proto.AckAdvise)
	ch1.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	// Server terminates the long-lived ORDERS advise: the handler
	// registered in startOrdersAdvise treats a nil row as termination
	// and forces a disconnect (§4.9, §7 Fatal).
	ch1.HandleUpdate(nil)

	if h.e.ConnectionStatus() != StatusDisconnected {
		t.Fatalf("status = %v, want Disconnected after fatal advise termination", h.e.ConnectionStatus())
	}
	if len(h.shutdowns) == 0 {
		t.Error("expected a shutdown request after fatal advise termination")
	}
	if !anyContains(h.emitted, "error: -") {
		t.Errorf("emitted = %v, want an error: line", h.emitted)
	}
}

func TestWatchdogBoundary(t *testing.T) {
	h := newHarness(t, testConfig())
	h.e.OnDisconnect()

	base := time.Now()
	h.e.mu.Lock()
	h.e.disconnectedAt = base
	h.e.mu.Unlock()

	h.e.checkWatchdog(base.Add(WatchdogTimeout))
	if len(h.shutdowns) != 0 {
		t.Fatalf("disconnected for exactly WatchdogTimeout should not yet be fatal, got shutdowns %v", h.shutdowns)
	}

	h.e.checkWatchdog(base.Add(WatchdogTimeout + time.Second))
	if len(h.shutdowns) != 1 {
		t.Fatalf("disconnected beyond WatchdogTimeout should request shutdown, got %v", h.shutdowns)
	}
}

func TestSubmitOrderLimitBuyRoundTrip(t *testing.T) {
	h := newHarness(t, testConfig())
	h.e.Accounts().SetAccounts([]string{"A.B.C.D"})

	var rendered order.Rendered
	var renderedErr error
	got := false

	err := h.e.SubmitOrder(OrderRequest{
		Account:  "A.B.C.D",
		Symbol:   "XYZ",
		Quantity: 100,
		Type:     OrderTypeLimit,
		Price:    12.34,
	}, func(r order.Rendered, e error) {
		rendered = r
		renderedErr = e
		got = true
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}

	ch1, ok := h.pool.ByID("1")
	if !ok {
		t.Fatal("expected channel 1 for the order poke")
	}
	connectChannel(ch1)

	if len(h.sent) != 2 {
		t.Fatalf("sent = %v, want [connect, poke] after OnInitAck replay", h.sent)
	}
	pokeLine := h.sent[1]

	if v := fieldValue(pokeLine, "BUYORSELL"); v != "Buy" {
		t.Errorf("BUYORSELL = %q, want Buy", v)
	}
	if v := fieldValue(pokeLine, "PRICE_TYPE"); v != "AsEntered" {
		t.Errorf("PRICE_TYPE = %q, want AsEntered", v)
	}
	if v := fieldValue(pokeLine, "PRICE"); v != "12.34" {
		t.Errorf("PRICE = %q, want 12.34", v)
	}
	if v := fieldValue(pokeLine, "VOLUME"); v != "100" {
		t.Errorf("VOLUME = %q, want 100", v)
	}
	if v := fieldValue(pokeLine, "TYPE"); v != "UserSubmitOrder" {
		t.Errorf("TYPE = %q, want UserSubmitOrder", v)
	}
	if v := fieldValue(pokeLine, "EXCHANGE"); v != DefaultExchange {
		t.Errorf("EXCHANGE = %q, want default %q", v, DefaultExchange)
	}
	coid := fieldValue(pokeLine, "CLIENT_ORDER_ID")
	if coid == "" {
		t.Fatal("CLIENT_ORDER_ID missing from poke payload")
	}

	ch1.HandleAck(proto.AckPoke)
	ch1.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	if got {
		t.Fatal("submission callback should not fire before the Order Book folds the echoed row")
	}

	// The server's response row arrives on the ORDERS advise path
	// (§4.5), promoting the pending submission by CLIENT_ORDER_ID.
	h.e.handleOrderRow(map[string]string{
		"ORIGINAL_ORDER_ID": "O1",
		"CLIENT_ORDER_ID":   coid,
		"BANK":              "A", "BRANCH": "B", "CUSTOMER": "C", "DEPOSIT": "D",
		"CURRENT_STATUS": "PENDING",
		"TYPE":           "UserSubmitOrder",
	})

	if !got {
		t.Fatal("submission callback never fired")
	}
	if renderedErr != nil {
		t.Fatalf("renderedErr = %v, want nil", renderedErr)
	}
	if rendered.PermID != "O1" || rendered.Account != "A.B.C.D" || rendered.Status != order.StatusSubmitted {
		t.Errorf("rendered = %+v, want permid=O1 account=A.B.C.D status=Submitted", rendered)
	}
}

func TestCancelUnknownOrderFailsSynchronously(t *testing.T) {
	h := newHarness(t, testConfig())

	var gotErr error
	called := false
	if err := h.e.CancelOrder("NOPE", func(r order.Rendered, e error) {
		called = true
		gotErr = e
	}); err != nil {
		t.Fatalf("CancelOrder(unknown) top-level error = %v, want nil", err)
	}
	if !called {
		t.Fatal("callback should fire synchronously for an unknown order")
	}
	if gotErr != ErrUnknownOrder {
		t.Errorf("gotErr = %v, want ErrUnknownOrder", gotErr)
	}
}

func TestSubmitOrderUnknownAccountFailsSynchronously(t *testing.T) {
	h := newHarness(t, testConfig())
	h.e.Accounts().SetAccounts([]string{"A.B.C.D"})

	var gotErr error
	called := false
	err := h.e.SubmitOrder(OrderRequest{
		Account:  "X.X.X.X",
		Symbol:   "XYZ",
		Quantity: 100,
		Type:     OrderTypeLimit,
		Price:    12.34,
	}, func(r order.Rendered, e error) {
		called = true
		gotErr = e
	})
	if err != nil {
		t.Fatalf("SubmitOrder(unknown account) top-level error = %v, want nil", err)
	}
	if !called {
		t.Fatal("callback should fire synchronously for an unknown account")
	}
	if gotErr == nil {
		t.Error("gotErr should be non-nil for an unknown account")
	}
	if len(h.sent) != 0 {
		t.Errorf("sent = %v, want no wire traffic for a rejected submission", h.sent)
	}
}

func TestPollTimeErrorSentinelForcesDisconnect(t *testing.T) {
	h := newHarness(t, testConfig())

	h.e.onTimeRow("01/02/2024", "Error 17")

	if h.e.ConnectionStatus() != StatusDisconnected {
		t.Fatalf("status = %v, want Disconnected after Error 17", h.e.ConnectionStatus())
	}
	if len(h.shutdowns) == 0 {
		t.Error("expected a shutdown request after $TIME=Error 17")
	}
}

func TestPollTimeEmitsOncePerMinute(t *testing.T) {
	h := newHarness(t, testConfig())

	h.e.onTimeRow("01/02/2024", "09:30:15")
	h.e.onTimeRow("01/02/2024", "09:30:45")
	h.e.onTimeRow("01/02/2024", "09:31:01")

	count := 0
	for _, l := range h.emitted {
		if strings.HasPrefix(l, "time: ") {
			count++
		}
	}
	if count != 2 {
		t.Errorf("got %d time: emissions across two distinct minutes, want 2 (emitted=%v)", count, h.emitted)
	}
}
