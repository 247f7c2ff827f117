// Package account implements the Account Directory: enumeration of
// OS accounts permitted to run tasks, and the default-account
// fallback chain used when no POSIX account database is available.
package account

import (
	"fmt"
	"os"
	"sort"
)

// AllowedGroupIDs is the fixed allow-list of group ids whose members
// (primary or supplemental) may run tasks.
var AllowedGroupIDs = []int{0, 1000, 1001}

// Directory exposes the two Account Directory operations.
type Directory interface {
	// ListAllowedAccounts returns the sorted, deduplicated union of
	// every account whose primary group is allow-listed and every
	// account that is a member of an allow-listed group.
	ListAllowedAccounts() ([]string, error)

	// EnsureAllowed validates name (or resolves a default when name
	// is empty) and returns the resolved account name, or a
	// *ValidationError naming the offending field.
	EnsureAllowed(name string) (string, error)

	// Supported reports whether a POSIX account database backs this
	// directory. When false, only the default account may be used.
	Supported() bool
}

// ValidationError mirrors taskstore.ValidationError's shape without
// importing it, keeping account dependency-free of the store.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// defaultAccountName resolves SCHEDULER_DEFAULT_ACCOUNT, then
// USERNAME, then USER, then the current process owner, in that
// order.
func defaultAccountName() (string, error) {
	for _, env := range []string{"SCHEDULER_DEFAULT_ACCOUNT", "USERNAME", "USER"} {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	u, err := currentUser()
	if err != nil {
		return "", fmt.Errorf("resolving default account: %w", err)
	}
	return u, nil
}

func dedupSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
