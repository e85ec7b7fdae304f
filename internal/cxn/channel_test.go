package cxn

import (
	"testing"

	"github.com/rickgao/txrelay/internal/proto"
)

func newTestPool(t *testing.T) (*Pool, *[]string) {
	t.Helper()
	var sent []string
	send := func(line string) error {
		sent = append(sent, line)
		return nil
	}
	return NewPool(send, nil, nil), &sent
}

func TestNewChannelSendsConnect(t *testing.T) {
	pool, sent := newTestPool(t)
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")

	if len(*sent) != 1 {
		t.Fatalf("sent = %v, want exactly one connect command", *sent)
	}
	want := proto.Connect(ch.ID, "ACCOUNT_GATEWAY", "ORDER")
	if (*sent)[0] != want {
		t.Errorf("sent[0] = %q, want %q", (*sent)[0], want)
	}
}

func TestPreConnectQueueingAndReplay(t *testing.T) {
	pool, sent := newTestPool(t)
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")

	var gotRows any
	err := ch.Send(SendOpts{
		Verb:  "request",
		Table: "ORDERS",
		What:  "*",
		ResponseCb: func(v any, err error) {
			gotRows = v
		},
	})
	if err != nil {
		t.Fatalf("pre-connect Send should queue, got error: %v", err)
	}

	// A second pre-connect send is rejected.
	err = ch.Send(SendOpts{Verb: "request", Table: "ORDERS"})
	if err != ErrPreConnectActionSet {
		t.Fatalf("second pre-connect Send = %v, want ErrPreConnectActionSet", err)
	}

	if len(*sent) != 1 {
		t.Fatalf("request should not be sent before OnInitAck, sent = %v", *sent)
	}

	// OnInitAck status=1 arrives: the deferred request is replayed.
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)

	if len(*sent) != 2 {
		t.Fatalf("sent = %v, want connect + replayed request", *sent)
	}

	ch.HandleAck(proto.AckRequest)
	ch.HandleResponse(map[string]string{"ORIGINAL_ORDER_ID": "O1"}, true)

	rows, ok := gotRows.([]map[string]string)
	if !ok || len(rows) != 1 || rows[0]["ORIGINAL_ORDER_ID"] != "O1" {
		t.Errorf("response callback got %v, want one row with ORIGINAL_ORDER_ID=O1", gotRows)
	}
}

func TestAckMismatchFailsResponse(t *testing.T) {
	pool, _ := newTestPool(t)
	ch := pool.Get("SERVICE", "TOPIC")
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)

	var gotErr error
	ch.Send(SendOpts{
		Verb:  "request",
		Table: "ORDERS",
		ResponseCb: func(v any, err error) {
			gotErr = err
		},
	})

	ch.HandleAck("SOMETHING_ELSE_OK")

	if gotErr == nil {
		t.Fatal("expected response callback to fail on ack mismatch")
	}
}

func TestAdviseStaysPendingWhileHandlerActive(t *testing.T) {
	pool, _ := newTestPool(t)
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)

	var rows []map[string]string
	ch.Send(SendOpts{
		Verb:  "advise",
		Table: "ORDERS",
		What:  "*",
		UpdateHandler: func(c *Channel, row map[string]string) {
			rows = append(rows, row)
		},
	})
	ch.HandleAck(proto.AckAdvise)
	ch.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	if ch.ready() {
		t.Fatal("channel with an active advise handler should never be ready")
	}

	ch.HandleUpdate(map[string]string{"ORIGINAL_ORDER_ID": "O1"})
	ch.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK) // interleaved recurring ack
	ch.HandleUpdate(map[string]string{"ORIGINAL_ORDER_ID": "O2"})

	if len(rows) != 2 {
		t.Fatalf("update handler received %d rows, want 2", len(rows))
	}
}

func TestOnTerminateSignalsHandlerWithNil(t *testing.T) {
	pool, _ := newTestPool(t)
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)

	terminated := false
	ch.Send(SendOpts{
		Verb:  "advise",
		Table: "ORDERS",
		UpdateHandler: func(c *Channel, row map[string]string) {
			if row == nil {
				terminated = true
			}
		},
	})
	ch.HandleAck(proto.AckAdvise)
	ch.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	ch.HandleStatus(proto.StatusOnTerminate, proto.StatusOK)

	if !terminated {
		t.Error("update handler should be invoked with a nil row on OnTerminate")
	}
}

func TestPokeReturnsToIdlePoolOnceReady(t *testing.T) {
	pool, _ := newTestPool(t)
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")
	ch.HandleStatus(proto.StatusOnInitAck, proto.StatusOK)

	ch.Send(SendOpts{
		Verb:  "poke",
		Table: "ORDER",
		Fields: []proto.KV{
			{Key: "TYPE", Value: "UserSubmitOrder"},
		},
	})
	ch.HandleAck(proto.AckPoke)
	if ch.ready() {
		t.Fatal("channel should not be ready until status arrives")
	}
	ch.HandleStatus(proto.StatusOnOtherAck, proto.StatusOK)

	if !ch.ready() {
		t.Fatal("channel should be ready after poke ack+status complete")
	}

	got := pool.Get("ACCOUNT_GATEWAY", "ORDER")
	if got != ch {
		t.Error("Get should reuse the idle channel rather than construct a new one")
	}
}
