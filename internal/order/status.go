package order

import "github.com/rickgao/txrelay/internal/field"

// Rendered order statuses (§4.5).
const (
	StatusSubmitted = "Submitted"
	StatusPending   = "Pending"
	StatusFilled    = "Filled"
	StatusCancelled = "Cancelled"
	StatusChanged   = "Changed"
	StatusAccepted  = "Accepted"
	StatusError     = "Error"
)

// fillType is the TYPE value that marks a sub-update (or the base
// fields) as a trade execution (§4.5 "fully filled").
const fillType = "ExchangeTradeOrder"

// deriveStatus computes the status transition for one applied row,
// given the order's current field map (already merged) and its full
// sub-update history. An empty string return means "no status change"
// (the COMPLETED/ExchangeTradeOrder case where only fills are folded in
// mid-flight); reportErr flags statuses that should also raise an alert.
func deriveStatus(fields map[string]string, subs []SubUpdate) (status string, reportErr bool) {
	switch fields["CURRENT_STATUS"] {
	case "PENDING":
		return StatusSubmitted, false
	case "LIVE":
		return StatusPending, false
	case "COMPLETED":
		if fullyFilled(fields, subs) {
			return StatusFilled, false
		}
		switch fields["TYPE"] {
		case "UserSubmitOrder", "UserSubmitStagedOrder", "UserSubmitStatus", "ExchangeReportStatus":
			return StatusSubmitted, false
		case "UserSubmitCancel":
			return StatusCancelled, false
		case "UserSubmitChange":
			return StatusChanged, false
		case "ExchangeAcceptOrder":
			return StatusAccepted, false
		case fillType:
			return "", false
		case "ClerkReject", "ExchangeKillOrder":
			return StatusError, false
		default:
			return StatusError, true
		}
	case "CANCELLED":
		return StatusCancelled, false
	case "DELETED":
		return StatusError, false
	default:
		return StatusError, true
	}
}

// fullyFilled implements §4.5's "fully filled" predicate: COMPLETED,
// at least one ExchangeTradeOrder fill seen (on the base fields or
// among sub-updates), and the traded volume equals the original volume.
func fullyFilled(fields map[string]string, subs []SubUpdate) bool {
	if fields["CURRENT_STATUS"] != "COMPLETED" {
		return false
	}
	hasFill := fields["TYPE"] == fillType
	if !hasFill {
		for _, s := range subs {
			if s.Type == fillType {
				hasFill = true
				break
			}
		}
	}
	if !hasFill {
		return false
	}
	return field.Int(fields["ORIGINAL_VOLUME"]) == field.Int(fields["VOLUME_TRADED"])
}
