package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame types carried in the inbound "type" field (§6).
const (
	FrameSystem   = "system"
	FrameAck      = "ack"
	FrameResponse = "response"
	FrameStatus   = "status"
	FrameUpdate   = "update"
)

// Status messages carried in a status frame's data.msg (§4.2).
const (
	StatusOnInitAck   = "OnInitAck"
	StatusOnOtherAck  = "OnOtherAck"
	StatusOnTerminate = "OnTerminate"
)

// StatusOK is the string value of data.status that signals success.
const StatusOK = "1"

// Ack suffixes returned for each command verb (§4.2).
const (
	AckRequest       = "REQUEST_OK"
	AckAdvise        = "ADVISE_OK"
	AckAdviseRequest = "ADVISEREQUEST_OK"
	AckUnadvise      = "UNADVISE_OK"
	AckPoke          = "POKE_OK"
	AckExecute       = "EXECUTE_OK"
	AckTerminate     = "TERMINATE_OK"
)

// Inbound is one newline-delimited JSON frame from the upstream gateway.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// SystemData is the payload of a "system" frame.
type SystemData struct {
	Msg  string `json:"msg"`
	Item string `json:"item"`
}

// AckData is the payload of an "ack" frame.
type AckData struct {
	Msg string `json:"msg"`
}

// ResponseData is the payload of a "response" frame.
type ResponseData struct {
	Row      map[string]string `json:"row"`
	Complete bool              `json:"complete"`
}

// StatusData is the payload of a "status" frame.
type StatusData struct {
	Msg    string `json:"msg"`
	Status string `json:"status"`
}

// UpdateData is the payload of an "update" frame.
type UpdateData struct {
	Row map[string]string `json:"row"`
}

// Decode parses one newline-delimited JSON line into an Inbound frame.
func Decode(line []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(line, &in); err != nil {
		return Inbound{}, fmt.Errorf("proto: decode frame: %w", err)
	}
	return in, nil
}

// Connect builds the "connect <id> <service;topic>" outbound command
// issued on channel construction (§4.2).
func Connect(id, service, topic string) string {
	return fmt.Sprintf("connect %s %s;%s", id, service, topic)
}

// Command builds one of the table-addressed verbs: request, advise,
// adviserequest, unadvise (§6).
func Command(verb, id, table, what, where string) string {
	return fmt.Sprintf("%s %s %s;%s;%s", verb, id, table, what, where)
}

// Poke builds a "poke" command with a serialized field payload appended
// after "!" (§4.7, §6). fields must already be in the caller's intended
// insertion order.
func Poke(id, table, what, where string, fields []KV) string {
	return fmt.Sprintf("poke %s %s;%s;%s!%s", id, table, what, where, SerializeFields(fields))
}

// Execute builds an "execute <id> <command>" outbound command.
func Execute(id, command string) string {
	return fmt.Sprintf("execute %s %s", id, command)
}

// Terminate builds a "terminate <id> <code>" outbound command.
func Terminate(id, code string) string {
	return fmt.Sprintf("terminate %s %s", id, code)
}

// KV is one key/value pair of a poke payload, kept as a slice (not a
// map) so callers control field ordering (§4.7's canonical order).
type KV struct {
	Key   string
	Value string
}

// SerializeFields renders a poke payload as "k=v,k=v,…" in the given
// order (§4.7).
func SerializeFields(fields []KV) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Key + "=" + f.Value
	}
	return strings.Join(parts, ",")
}

// AckFor returns the expected ack suffix for a command verb, per the
// Channel verb table in §4.2.
func AckFor(verb string) (string, bool) {
	switch verb {
	case "request":
		return AckRequest, true
	case "advise":
		return AckAdvise, true
	case "adviserequest":
		return AckAdviseRequest, true
	case "unadvise":
		return AckUnadvise, true
	case "poke":
		return AckPoke, true
	case "execute":
		return AckExecute, true
	case "terminate":
		return AckTerminate, true
	default:
		return "", false
	}
}
