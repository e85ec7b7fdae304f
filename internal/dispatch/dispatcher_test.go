package dispatch

import (
	"testing"

	"github.com/rickgao/txrelay/internal/cxn"
	"github.com/rickgao/txrelay/internal/proto"
	"github.com/rickgao/txrelay/internal/wire"
)

func fakeSend(lines *[]string) wire.Sender {
	return func(line string) error {
		*lines = append(*lines, line)
		return nil
	}
}

func TestOnConnectBuildsPoolAndInvokesHandler(t *testing.T) {
	var gotPool *cxn.Pool
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) { gotPool = pool },
		func() {},
		func(reason string) {},
		func(id string, err error) {},
		nil,
	)

	var sent []string
	d.OnConnect(fakeSend(&sent))

	if gotPool == nil {
		t.Fatal("onConnect handler was not invoked with a pool")
	}
	if d.Pool() != gotPool {
		d2 := d.Pool()
		t.Errorf("Pool() = %v, want %v", d2, gotPool)
	}
}

func TestOnFrameRoutesSystemFrame(t *testing.T) {
	var gotMsg, gotItem string
	d := New(
		func(msg, item string) { gotMsg, gotItem = msg, item },
		func(pool *cxn.Pool) {},
		func() {},
		func(reason string) {},
		func(id string, err error) {},
		nil,
	)

	d.OnFrame(proto.Inbound{
		Type: proto.FrameSystem,
		Data: []byte(`{"msg":"startup","item":"rtx1"}`),
	})

	if gotMsg != "startup" || gotItem != "rtx1" {
		t.Errorf("system handler got (%q, %q), want (startup, rtx1)", gotMsg, gotItem)
	}
}

func TestOnFrameRoutesAckToChannel(t *testing.T) {
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) {},
		func() {},
		func(reason string) {},
		func(id string, err error) {},
		nil,
	)

	var sent []string
	d.OnConnect(fakeSend(&sent))

	pool := d.Pool()
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")

	// drive OnInitAck so the channel accepts a real Send.
	d.OnFrame(proto.Inbound{Type: proto.FrameStatus, ID: ch.ID, Data: []byte(`{"msg":"OnInitAck","status":"1"}`)})

	acked := false
	ch.Send(cxn.SendOpts{
		Verb:  "poke",
		Table: "ORDER",
		AckCb: func(value any, err error) { acked = true },
	})

	d.OnFrame(proto.Inbound{Type: proto.FrameAck, ID: ch.ID, Data: []byte(`{"msg":"POKE_OK"}`)})

	if !acked {
		t.Error("ack frame was not routed to the channel's ack callback")
	}
}

func TestOnFrameUnknownChannelCallsErrorSink(t *testing.T) {
	var gotID string
	var gotErr error
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) {},
		func() {},
		func(reason string) {},
		func(id string, err error) { gotID, gotErr = id, err },
		nil,
	)

	var sent []string
	d.OnConnect(fakeSend(&sent))

	d.OnFrame(proto.Inbound{Type: proto.FrameAck, ID: "does-not-exist", Data: []byte(`{"msg":"POKE_OK"}`)})

	if gotID != "does-not-exist" || gotErr == nil {
		t.Errorf("errorSink got (%q, %v), want (does-not-exist, non-nil)", gotID, gotErr)
	}
}

func TestOnFrameWithNoConnectionIsDroppedSilently(t *testing.T) {
	sinkCalled := false
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) {},
		func() {},
		func(reason string) {},
		func(id string, err error) { sinkCalled = true },
		nil,
	)

	// never connected: Pool() is nil.
	d.OnFrame(proto.Inbound{Type: proto.FrameAck, ID: "1", Data: []byte(`{"msg":"POKE_OK"}`)})

	if sinkCalled {
		t.Error("errorSink should not fire for frames arriving with no active connection")
	}
}

func TestOnDisconnectDropsPool(t *testing.T) {
	disconnected := false
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) {},
		func() { disconnected = true },
		func(reason string) {},
		func(id string, err error) {},
		nil,
	)

	var sent []string
	d.OnConnect(fakeSend(&sent))
	if d.Pool() == nil {
		t.Fatal("expected a pool after OnConnect")
	}

	d.OnDisconnect()

	if !disconnected {
		t.Error("onDisconnect handler was not invoked")
	}
	if d.Pool() != nil {
		t.Error("Pool() should be nil after OnDisconnect")
	}
}

func TestChannelErrorReachesErrorSink(t *testing.T) {
	var gotErr error
	d := New(
		func(msg, item string) {},
		func(pool *cxn.Pool) {},
		func() {},
		func(reason string) {},
		func(id string, err error) { gotErr = err },
		nil,
	)

	var sent []string
	d.OnConnect(fakeSend(&sent))
	pool := d.Pool()
	ch := pool.Get("ACCOUNT_GATEWAY", "ORDER")

	// an ack with nothing pending is a protocol mismatch (§7).
	d.OnFrame(proto.Inbound{Type: proto.FrameAck, ID: ch.ID, Data: []byte(`{"msg":"POKE_OK"}`)})

	if gotErr == nil {
		t.Error("expected the channel's protocol error to reach the error sink")
	}
}
