// Package metrics tracks per-label callback timing and expiry counts.
//
// Each label (DEFAULT, ACCOUNT, ADDSYMBOL, ORDER, ORDERSTATUS, POSITION,
// TIMER — see config.Label) accumulates count, min/max/avg elapsed
// milliseconds, an expiry count, and a bounded ring of the most recent
// elapsed samples (§4.4).
package metrics
