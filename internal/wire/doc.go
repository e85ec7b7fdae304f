// Package wire implements the Wire Client: a single reconnecting TCP
// socket to the upstream gateway, framing newline-delimited JSON
// objects and exposing a send function to the Dispatcher while
// connected (§4.1).
package wire
