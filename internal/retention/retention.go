package retention

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is a calendar unit in a retention age expression.
type Unit string

const (
	Days   Unit = "D"
	Weeks  Unit = "W"
	Months Unit = "M"
	Years  Unit = "Y"
)

// Expression is a parsed relative age, e.g. 6M or 30D. Month and year
// arithmetic is calendar-based, not a fixed-duration approximation, so a
// 6M cutoff lands on the same day-of-month six months back regardless of
// how long the intervening months were.
type Expression struct {
	Quantity int
	Unit     Unit
}

var exprPattern = regexp.MustCompile(`^(\d+)([DdWwMmYy])$`)

// Parse parses an age expression of the form <integer><unit> where unit is
// one of D, W, M, Y (case-insensitive, no whitespace).
func Parse(s string) (*Expression, error) {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, fmt.Errorf("invalid age expression %q: use forms like 30D, 2W, 6M, 1Y", s)
	}

	qty, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid age quantity %q: %w", m[1], err)
	}

	return &Expression{
		Quantity: qty,
		Unit:     Unit(strings.ToUpper(m[2])),
	}, nil
}

// Cutoff returns the absolute instant before which messages qualify for
// deletion, relative to now.
func (e *Expression) Cutoff(now time.Time) time.Time {
	switch e.Unit {
	case Days:
		return now.AddDate(0, 0, -e.Quantity)
	case Weeks:
		return now.AddDate(0, 0, -7*e.Quantity)
	case Months:
		return now.AddDate(0, -e.Quantity, 0)
	case Years:
		return now.AddDate(-e.Quantity, 0, 0)
	}
	return now
}

func (e *Expression) String() string {
	return fmt.Sprintf("%d%s", e.Quantity, e.Unit)
}

// ShouldDelete reports whether a message dated messageDate qualifies for
// deletion under expr evaluated at now. A message dated exactly at the
// cutoff is retained (strict before-comparison). A nil expression means
// every message qualifies; callers must gate that behind an explicit
// confirmation because it is delete-everything semantics.
func ShouldDelete(messageDate, now time.Time, expr *Expression) bool {
	if expr == nil {
		return true
	}
	return messageDate.Before(expr.Cutoff(now))
}
