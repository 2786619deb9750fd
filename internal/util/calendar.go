package util

import (
	"time"
)

// TradingCalendar provides market-hours awareness for US equities.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a TradingCalendar in US Eastern time. If the
// zone database is unavailable it falls back to a fixed UTC-5 offset.
func NewTradingCalendar() *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &TradingCalendar{loc: loc}
}

// IsMarketOpen returns whether t falls inside the regular session
// (9:30-16:00 ET, Monday to Friday).
//
// TODO: consult the Alpaca calendar endpoint for exchange holidays and early
// closes.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	et := t.In(tc.loc)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, tc.loc)
	closing := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, tc.loc)
	return !et.Before(open) && et.Before(closing)
}

// NextOpen returns the next regular session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	et := t.In(tc.loc)
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, tc.loc)
	if !et.After(open) && isWeekday(open) {
		return open
	}
	for {
		open = open.AddDate(0, 0, 1)
		if isWeekday(open) {
			return open
		}
	}
}

func isWeekday(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}
