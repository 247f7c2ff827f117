package cronmatch

import (
	"github.com/robfig/cron/v3"
)

// checkSyntax runs expr through robfig/cron's standard parser as a
// cross-check. Parse calls it only after its own field-by-field parse
// has succeeded, so a malformed field is reported by that parse with
// the offending field's name; a rejection here is reported against the
// whole expression. The resulting *cron.SpecSchedule is discarded —
// matching and next_after are computed entirely by
// Parse/Matches/NextAfter, which implement the dom/dow union rule and
// CronLookaheadExceeded semantics this package needs and the library
// does not expose.
func checkSyntax(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
