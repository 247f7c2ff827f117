package cronmatch

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Expr {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	return e
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tm
}

// S1: expr */15 * * * *, moment 2025-01-01 00:00:07 -> next 2025-01-01 00:15:00.
func TestNextAfter_Basic(t *testing.T) {
	e := mustParse(t, "*/15 * * * *")
	got, err := e.NextAfter(at(t, "2025-01-01 00:00:07"))
	if err != nil {
		t.Fatal(err)
	}
	want := at(t, "2025-01-01 00:15:00")
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// S2: expr 0 0 1 * 1, moment 2025-06-01 12:00:00 -> next 2025-06-02 00:00:00.
func TestNextAfter_DomDowUnion(t *testing.T) {
	e := mustParse(t, "0 0 1 * 1")
	got, err := e.NextAfter(at(t, "2025-06-01 12:00:00"))
	if err != nil {
		t.Fatal(err)
	}
	want := at(t, "2025-06-02 00:00:00")
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextAfter_ForwardProgress(t *testing.T) {
	exprs := []string{"*/15 * * * *", "0 0 1 * 1", "30 4 * * 0", "0 0 29 2 *"}
	for _, expr := range exprs {
		e := mustParse(t, expr)
		now := at(t, "2025-03-15 10:00:00")
		next, err := e.NextAfter(now)
		if err != nil {
			t.Errorf("%s: %v", expr, err)
			continue
		}
		if !next.After(now) {
			t.Errorf("%s: NextAfter did not move forward: %v -> %v", expr, now, next)
		}
		again, err := e.NextAfter(next)
		if err != nil {
			t.Errorf("%s: %v", expr, err)
			continue
		}
		if !again.After(next) {
			t.Errorf("%s: second NextAfter did not move strictly forward: %v -> %v", expr, next, again)
		}
	}
}

func TestParse_WrongFieldCount(t *testing.T) {
	_, err := Parse("* * * *")
	if err == nil {
		t.Fatal("expected error for malformed expression")
	}
}

func TestParse_InvalidField(t *testing.T) {
	_, err := Parse("60 * * * *")
	if err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
	var pe *ParseError
	if !asParseError(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Field != "minute" {
		t.Errorf("expected field=minute, got %q", pe.Field)
	}
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func TestWildcardDetection(t *testing.T) {
	e := mustParse(t, "0 0 * * *")
	if !e.dom.wildcard || !e.dow.wildcard {
		t.Error("expected both dom and dow wildcard for * *")
	}
	e2 := mustParse(t, "0 0 1-31 * *")
	if !e2.dom.wildcard {
		t.Error("expected full-range expansion 1-31 to be tagged wildcard")
	}
}

func TestLookaheadExceeded(t *testing.T) {
	e := mustParse(t, "0 0 29 2 *")
	// Even this rare expression is found within the bound since it
	// recurs every leap year; verify a genuinely impossible one fails.
	bad := &Expr{
		minute: field{set: map[int]bool{}},
		hour:   field{set: map[int]bool{}},
		dom:    field{set: map[int]bool{1: true}, wildcard: false},
		month:  field{set: map[int]bool{1: true}},
		dow:    field{set: map[int]bool{}},
	}
	_, err := bad.NextAfter(at(t, "2025-01-01 00:00:00"))
	if err == nil {
		t.Fatal("expected ErrLookaheadExceeded for unmatchable minute field")
	}
	_ = e
}
