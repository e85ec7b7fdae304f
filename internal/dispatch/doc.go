// Package dispatch implements the Dispatcher: the single entry point
// for inbound upstream frames. It routes ack/response/status/update
// frames to the Channel named by the frame id, routes system frames to
// the startup handler, and rebuilds the Channel Pool around a fresh
// Sender on every reconnect (§2, §4.2).
package dispatch
