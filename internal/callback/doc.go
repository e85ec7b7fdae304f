// Package callback implements the caller-visible continuation type and
// its registry: every asynchronous upstream operation allocates a
// Callback with a label-specific deadline, and a 1 Hz sweeper expires
// any that outlive it (§4.4).
package callback
