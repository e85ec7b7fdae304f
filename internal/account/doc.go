// Package account implements the Account Model: the sorted deduped
// list of known accounts, current-account selection, and per-account
// cached account data with pending-query gating (§3 Account).
package account
