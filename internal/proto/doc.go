// Package proto defines the upstream wire vocabulary: outbound command
// strings and inbound frame shapes for the newline-delimited JSON
// protocol described in §6.
package proto
