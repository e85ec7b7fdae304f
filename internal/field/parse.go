package field

import (
	"math"
	"strconv"
	"strings"
)

// errorMessages maps the numeric suffix of an "Error <code>" sentinel to
// its named meaning (§4.8).
var errorMessages = map[string]string{
	"0":   "Field Not Found",
	"2":   "Field No Value",
	"3":   "Field Not Permissioned",
	"17":  "No Record Exists",
	"256": "Field Reset",
}

// IsError reports whether v is an "error " sentinel (case-insensitive
// prefix match) and, if so, returns its resolved message.
func IsError(v string) (string, bool) {
	const prefix = "error "
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return "", false
	}
	code := strings.TrimSpace(v[len(prefix):])
	if msg, ok := errorMessages[code]; ok {
		return msg, true
	}
	return "Unknown Field Error", true
}

// Float parses v as a float rounded to two decimal places, returning 0.0
// if v is empty, an error sentinel, or not a valid number.
func Float(v string) float64 {
	if v == "" {
		return 0.0
	}
	if _, isErr := IsError(v); isErr {
		return 0.0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.0
	}
	return math.Round(f*100) / 100
}

// Int parses v as an integer, returning 0 if v is empty, an error
// sentinel, or not a valid integer.
func Int(v string) int {
	if v == "" {
		return 0
	}
	if _, isErr := IsError(v); isErr {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// String returns v unless it is an error sentinel, in which case it
// returns the empty string.
func String(v string) string {
	if _, isErr := IsError(v); isErr {
		return ""
	}
	return v
}
