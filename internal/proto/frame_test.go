package proto

import (
	"encoding/json"
	"testing"
)

func TestConnect(t *testing.T) {
	got := Connect("1", "ACCOUNT_GATEWAY", "ORDER")
	want := "connect 1 ACCOUNT_GATEWAY;ORDER"
	if got != want {
		t.Errorf("Connect() = %q, want %q", got, want)
	}
}

func TestCommand(t *testing.T) {
	got := Command("advise", "3", "ORDERS", "*", "")
	want := "advise 3 ORDERS;*;"
	if got != want {
		t.Errorf("Command() = %q, want %q", got, want)
	}
}

func TestPoke(t *testing.T) {
	fields := []KV{{"TYPE", "UserSubmitOrder"}, {"VOLUME", "100"}}
	got := Poke("4", "ORDER", "*", "", fields)
	want := "poke 4 ORDER;*;!TYPE=UserSubmitOrder,VOLUME=100"
	if got != want {
		t.Errorf("Poke() = %q, want %q", got, want)
	}
}

func TestSerializeFields(t *testing.T) {
	fields := []KV{{"A", "1"}, {"B", "2"}}
	got := SerializeFields(fields)
	want := "A=1,B=2"
	if got != want {
		t.Errorf("SerializeFields() = %q, want %q", got, want)
	}
}

func TestDecode(t *testing.T) {
	in, err := Decode([]byte(`{"type":"status","id":"7","data":{"msg":"OnInitAck","status":"1"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Type != FrameStatus || in.ID != "7" {
		t.Errorf("Decode() = %+v, want type=status id=7", in)
	}
	var data StatusData
	if err := json.Unmarshal(in.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Msg != StatusOnInitAck || data.Status != StatusOK {
		t.Errorf("data = %+v, want OnInitAck/1", data)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("Decode(malformed) should return an error")
	}
}

func TestAckFor(t *testing.T) {
	cases := []struct {
		verb string
		want string
		ok   bool
	}{
		{"request", AckRequest, true},
		{"advise", AckAdvise, true},
		{"adviserequest", AckAdviseRequest, true},
		{"unadvise", AckUnadvise, true},
		{"poke", AckPoke, true},
		{"execute", AckExecute, true},
		{"terminate", AckTerminate, true},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		got, ok := AckFor(tc.verb)
		if got != tc.want || ok != tc.ok {
			t.Errorf("AckFor(%q) = (%q, %v), want (%q, %v)", tc.verb, got, ok, tc.want, tc.ok)
		}
	}
}
