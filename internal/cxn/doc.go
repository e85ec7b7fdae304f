// Package cxn implements the Channel (per-(service,topic) logical
// session) state machine and the Channel Pool that registers active
// channels and reuses idle ones (§4.2, §4.3).
package cxn
