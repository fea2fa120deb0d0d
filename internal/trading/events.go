package trading

import (
	"math"
	"strings"
	"time"

	"options-engine/internal/models"
)

// Default event windows in days.
const (
	EarningsBlockWindowDays = 7
	ExpiryEarningsBuffer    = 3
)

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(models.ExpiryLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysApart(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours()) / 24
}

// BlockForEarnings reports whether earnings fall within windowDays of today,
// in either direction. A missing or unparseable date never blocks.
func BlockForEarnings(earningsDate string, today time.Time, windowDays int) bool {
	earnings, ok := parseDate(earningsDate)
	if !ok {
		return false
	}
	return daysApart(earnings, DateOnly(today)) <= float64(windowDays)
}

// ExpiryTooCloseToEarnings reports whether an expiry lands within bufferDays
// of the earnings date.
func ExpiryTooCloseToEarnings(expiry, earningsDate string, bufferDays int) bool {
	earnings, ok := parseDate(earningsDate)
	if !ok {
		return false
	}
	exp, ok := parseDate(expiry)
	if !ok {
		return false
	}
	return daysApart(earnings, exp) <= float64(bufferDays)
}

// IsBlackoutPeriod reports whether today falls in a macro-event blackout.
// No blackout calendar is wired yet, so trading is always allowed.
func IsBlackoutPeriod(today time.Time) bool {
	return false
}
