// Package cronmatch parses 5-field cron expressions and computes
// forward matches against wall-clock time.
package cronmatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxLookaheadMinutes bounds next_after's forward search. Set to eight
// years (2,922 days) in minutes, the longest gap between two Feb 29ths
// (e.g. 2096 to 2104), so an expression that only matches on Feb 29
// (e.g. "0 0 29 2 *") is still found.
const MaxLookaheadMinutes = 4_207_680

// ErrLookaheadExceeded is returned by NextAfter when no match is found
// within MaxLookaheadMinutes.
var ErrLookaheadExceeded = fmt.Errorf("cron: no match within lookahead window")

// ParseError names the offending field of an unparseable expression.
type ParseError struct {
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron: invalid %s field: %s", e.Field, e.Msg)
}

// field holds the expanded match set for one cron field plus whether
// it was wildcard (a literal "*" or an expansion covering the whole
// range).
type field struct {
	set      map[int]bool
	wildcard bool
}

func (f field) has(v int) bool { return f.set[v] }

// Expr is a parsed 5-field cron expression.
type Expr struct {
	minute field
	hour   field
	dom    field
	month  field
	dow    field
	raw    string
}

// String returns the original expression text.
func (e *Expr) String() string { return e.raw }

// Parse parses a 5-field cron expression: minute hour dom month dow.
func Parse(expr string) (*Expr, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, &ParseError{Field: "expression", Msg: fmt.Sprintf("expected 5 fields, got %d", len(parts))}
	}

	minute, err := parseField("minute", parts[0], 0, 59)
	if err != nil {
		return nil, err
	}
	hour, err := parseField("hour", parts[1], 0, 23)
	if err != nil {
		return nil, err
	}
	dom, err := parseField("day-of-month", parts[2], 1, 31)
	if err != nil {
		return nil, err
	}
	month, err := parseField("month", parts[3], 1, 12)
	if err != nil {
		return nil, err
	}
	dow, err := parseField("weekday", parts[4], 0, 7)
	if err != nil {
		return nil, err
	}
	// normalize weekday 7 -> 0 (Sunday); the weekday is wildcard when
	// every day 0-6 is covered.
	if dow.set[7] {
		delete(dow.set, 7)
		dow.set[0] = true
	}
	dow.wildcard = isWildcardExpansion(dow, 0, 6)

	// The weekday field is left out of the library cross-check: the
	// library caps weekday at 6, while 7 is accepted here as Sunday.
	if err := checkSyntax(strings.Join(parts[:4], " ") + " *"); err != nil {
		return nil, &ParseError{Field: "expression", Msg: err.Error()}
	}

	return &Expr{minute: minute, hour: hour, dom: dom, month: month, dow: dow, raw: expr}, nil
}

// Matches reports whether t (at minute precision) satisfies the
// expression, applying the standard dom/dow union rule: if both
// day-of-month and weekday are non-wildcard, a candidate matches if
// either matches; if exactly one is wildcard, only the non-wildcard
// field constrains; if both are wildcard, the calendar portion is
// unconstrained.
func (e *Expr) Matches(t time.Time) bool {
	if !e.minute.has(t.Minute()) || !e.hour.has(t.Hour()) || !e.month.has(int(t.Month())) {
		return false
	}

	domMatch := e.dom.has(t.Day())
	dowMatch := e.dow.has(int(t.Weekday()))

	switch {
	case !e.dom.wildcard && !e.dow.wildcard:
		return domMatch || dowMatch
	case e.dom.wildcard && !e.dow.wildcard:
		return dowMatch
	case !e.dom.wildcard && e.dow.wildcard:
		return domMatch
	default:
		return true
	}
}

// NextAfter truncates moment to minute precision and probes forward
// minute-by-minute until a match is found or MaxLookaheadMinutes is
// exhausted.
func (e *Expr) NextAfter(moment time.Time) (time.Time, error) {
	t := moment.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < MaxLookaheadMinutes; i++ {
		if e.Matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, ErrLookaheadExceeded
}

func parseField(name, raw string, min, max int) (field, error) {
	f := field{set: make(map[int]bool)}
	items := strings.Split(raw, ",")
	for _, item := range items {
		if item == "" {
			return field{}, &ParseError{Field: name, Msg: "empty item"}
		}
		if err := expandItem(&f, item, min, max); err != nil {
			return field{}, &ParseError{Field: name, Msg: err.Error()}
		}
	}
	if isWildcardExpansion(f, min, max) {
		f.wildcard = true
	}
	return f, nil
}

// isWildcardExpansion reports whether the expanded set covers the
// field's full range, per spec: "fields... whose expansion covers the
// full range are tagged wildcard".
func isWildcardExpansion(f field, min, max int) bool {
	for v := min; v <= max; v++ {
		if !f.set[v] {
			return false
		}
	}
	return true
}

// expandItem parses one comma-separated item: "*", "n", "a-b",
// "*/n", or "a-b/n", and adds the resulting values to f.set.
func expandItem(f *field, item string, min, max int) error {
	base := item
	step := 1
	if idx := strings.IndexByte(item, '/'); idx >= 0 {
		base = item[:idx]
		n, err := strconv.Atoi(item[idx+1:])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid step in %q", item)
		}
		step = n
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = min, max
	case strings.Contains(base, "-"):
		parts := strings.SplitN(base, "-", 2)
		a, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid range start in %q", item)
		}
		b, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid range end in %q", item)
		}
		lo, hi = a, b
	default:
		v, err := strconv.Atoi(base)
		if err != nil {
			return fmt.Errorf("invalid value %q", base)
		}
		lo, hi = v, v
	}

	if lo < min || hi > max || lo > hi {
		return fmt.Errorf("value out of range in %q (expected %d-%d)", item, min, max)
	}

	first := lo
	for v := lo; v <= hi; v++ {
		if (v-first)%step == 0 {
			f.set[v] = true
		}
	}
	return nil
}
