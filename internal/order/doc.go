// Package order implements the Order Book and Ticket Book: the
// authoritative in-memory record of orders and staged tickets, folding
// a stream of partially-ordered upstream update rows into derived
// status (§3 Order, §3 Ticket, §4.5).
package order
