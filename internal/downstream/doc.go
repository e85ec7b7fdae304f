// Package downstream implements the fan-out side of the downstream
// client-facing line protocol: a TCP listener that hands every
// connected client the same newline-terminated event strings the
// Engine emits (§6). The protocol's own authentication and RPC framing
// are external collaborators (§1 Out of scope); this package only
// implements the broadcast contract named there.
package downstream
