//go:build !windows

package runner

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRun_Success(t *testing.T) {
	r := New()
	result, err := r.Run(context.Background(), Request{
		TaskID:        1,
		TaskName:      "demo",
		ScriptBody:    "echo hello",
		TriggerReason: "manual",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitCode)
	}
	if result.Log != "hello" {
		t.Errorf("expected log %q, got %q", "hello", result.Log)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := New()
	result, err := r.Run(context.Background(), Request{
		ScriptBody: "exit 3",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitCode)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := New()
	result, err := r.Run(context.Background(), Request{
		ScriptBody: "sleep 5",
		Timeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected TimedOut=true")
	}
}

func TestRunCondition_Satisfied(t *testing.T) {
	r := New()
	ok, err := r.RunCondition(context.Background(), "exit 0", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected condition satisfied")
	}
}

func TestRunCondition_NotSatisfied(t *testing.T) {
	r := New()
	ok, err := r.RunCondition(context.Background(), "exit 1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected condition not satisfied")
	}
}

func TestRun_AccountSwitchDeniedWithoutRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root: permission-denied path does not apply")
	}
	r := New()
	r.CurrentAccount = "nonroot-test-user"
	_, err := r.Run(context.Background(), Request{
		Account:    "some-other-account",
		ScriptBody: "echo hi",
	})
	if err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied (unless test runs as root), got %v", err)
	}
}
