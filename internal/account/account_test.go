package account

import "testing"

func TestFallbackDirectory_DefaultAccount(t *testing.T) {
	t.Setenv("SCHEDULER_DEFAULT_ACCOUNT", "svc-scheduler")

	d := fallbackDirectory{}
	if d.Supported() {
		t.Fatal("expected fallback directory to report unsupported")
	}

	resolved, err := d.EnsureAllowed("")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "svc-scheduler" {
		t.Errorf("expected svc-scheduler, got %q", resolved)
	}

	_, err = d.EnsureAllowed("someone-else")
	if err == nil {
		t.Fatal("expected ValidationError for non-default account without POSIX support")
	}
}

func TestFallbackDirectory_ListAllowed(t *testing.T) {
	t.Setenv("SCHEDULER_DEFAULT_ACCOUNT", "svc-scheduler")
	d := fallbackDirectory{}
	names, err := d.ListAllowedAccounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "svc-scheduler" {
		t.Errorf("expected [svc-scheduler], got %v", names)
	}
}

func TestDedupSorted(t *testing.T) {
	got := dedupSorted([]string{"bob", "alice", "bob", "carol"})
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
