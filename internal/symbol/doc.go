// Package symbol implements the Symbol Table: client-ref-counted tick
// subscriptions with upstream advise fan-out and quote/trade dedup
// (§3 Symbol, §4.6).
package symbol
