// Package engine implements the Engine: the single owning value that
// threads through every inbound frame and every caller-initiated
// operation (§9 "Global mutable state... model it as a single owning
// Engine value"). It drives the startup query sequence (§4.9), builds
// and submits orders (§4.7), runs the 1Hz timer loop (§5), and is the
// home of the error taxonomy's fatal path (§7 force_disconnect).
package engine
