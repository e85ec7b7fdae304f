package engine

import (
	"fmt"
	"time"

	"github.com/rickgao/txrelay/internal/cxn"
)

// timeService/timeSymbol address the $TIME pseudo-symbol on the same
// per-symbol channel service the Symbol Table uses (§5 "Time handling").
const (
	timeService = "TA_SRV"
	timeSymbol  = "$TIME"
)

// errorLoginFailed is the TRDTIM_1 sentinel meaning the feed considers
// the session unauthenticated (§5, §7 Fatal "$TIME=Error 17").
const errorLoginFailed = "Error 17"

// pollTime issues one request for the ($TIME, TRD_DATE/TRDTIM_1) pair
// when seconds-tick polling is enabled, forcing a disconnect on the
// login-failure sentinel and otherwise emitting a time: event once per
// localized minute boundary (§5).
func (e *Engine) pollTime(now time.Time) {
	pool := e.Pool()
	if pool == nil {
		return
	}

	ch := pool.Get(timeService, timeSymbol)
	err := ch.Send(cxn.SendOpts{
		Verb:  "request",
		Table: "LIVEQUOTE",
		What:  "TRD_DATE,TRDTIM_1",
		ResponseCb: func(v any, err error) {
			if err != nil {
				e.logger.Warn("engine: $TIME poll failed", "error", err)
				return
			}
			rows, _ := v.([]map[string]string)
			if len(rows) == 0 {
				return
			}
			row := rows[0]
			e.onTimeRow(row["TRD_DATE"], row["TRDTIM_1"])
		},
	})
	if err != nil {
		e.logger.Warn("engine: $TIME poll send failed", "error", err)
	}
}

// onTimeRow applies one polled (TRD_DATE, TRDTIM_1) pair (§5).
func (e *Engine) onTimeRow(trdDate, trdTim1 string) {
	if trdTim1 == errorLoginFailed {
		e.forceDisconnect("$TIME reported Error 17 (login failed)")
		return
	}
	e.emitLocalizedMinute(trdDate, trdTim1)
}

// emitLocalizedMinute converts the feed's (TRD_DATE, TRDTIM_1) pair
// from the configured feed timezone to host local time, emitting
// time: once per distinct minute (§5).
func (e *Engine) emitLocalizedMinute(trdDate, trdTim1 string) {
	localized, ok := localizeFeedTime(trdDate, trdTim1, e.cfg.Feed.Timezone)
	if !ok {
		return
	}

	minute := localized.Format("2006-01-02 15:04")
	e.mu.Lock()
	if e.lastMinute == minute {
		e.mu.Unlock()
		return
	}
	e.lastMinute = minute
	e.mu.Unlock()

	e.emit(fmt.Sprintf("time: %s:00", minute))
}

// localizeFeedTime parses TRD_DATE (MM/DD/YYYY) and TRDTIM_1 (HH:MM:SS)
// as wall-clock time in the named feed timezone and converts it to the
// host's local zone. Defaults to UTC when tzName is unset or unknown,
// rather than silently treating feed time as already-local.
func localizeFeedTime(trdDate, trdTim1, tzName string) (time.Time, bool) {
	if trdDate == "" || trdTim1 == "" {
		return time.Time{}, false
	}

	loc := time.UTC
	if tzName != "" {
		if l, err := time.LoadLocation(tzName); err == nil {
			loc = l
		}
	}

	t, err := time.ParseInLocation("01/02/2006 15:04:05", trdDate+" "+trdTim1, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.Local(), true
}
