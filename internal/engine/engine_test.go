package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jholhewres/opstaskd/internal/runner"
	"github.com/jholhewres/opstaskd/internal/taskstore"
)

type fakeAccounts struct{}

func (fakeAccounts) EnsureAllowed(name string) (string, error) {
	if name == "" {
		return "opstask", nil
	}
	return name, nil
}

func newTestEngine(t *testing.T) (*Engine, *taskstore.Store, *taskstore.Validator) {
	t.Helper()
	dir := t.TempDir()
	store, err := taskstore.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	e := New(store, runner.New(), logger, Config{TaskTimeout: 5 * time.Second, ConditionTimeout: 2 * time.Second})
	return e, store, taskstore.NewValidator(fakeAccounts{})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func strPtr(s string) *string { return &s }

func TestRunManual_DependencyBlocked(t *testing.T) {
	e, store, v := newTestEngine(t)

	a, err := store.CreateTask(v, taskstore.RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.CreateTask(v, taskstore.RawPayload{
		Name:               strPtr("b"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo b"),
		PreTaskIDs:         []any{float64(a.ID)},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = e.RunManual(context.Background(), b.ID)
	if _, ok := err.(*taskstore.DependencyError); !ok {
		t.Fatalf("expected *DependencyError, got %T: %v", err, err)
	}

	results, err := store.ListResults(b.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no result row created for blocked manual run, got %d", len(results))
	}
}

func TestRunManual_ConflictWhenRunning(t *testing.T) {
	e, store, v := newTestEngine(t)

	task, err := store.CreateTask(v, taskstore.RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("sleep 2"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.RecordResultStart(task.ID, taskstore.ReasonManual); err != nil {
		t.Fatal(err)
	}

	err = e.RunManual(context.Background(), task.ID)
	if _, ok := err.(*taskstore.ConflictError); !ok {
		t.Fatalf("expected *ConflictError, got %T: %v", err, err)
	}
}

// S5: a running task is not dispatched again by a tick; the skip leaves
// next_run_at set rather than clearing it.
func TestDispatchDueTasks_NoOverlap(t *testing.T) {
	e, store, v := newTestEngine(t)
	now := time.Now()

	task, err := store.CreateTask(v, taskstore.RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ScheduleNextRunAt(task.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordResultStart(task.ID, taskstore.ReasonManual); err != nil {
		t.Fatal(err)
	}

	e.engineStartTime = now.Add(-time.Hour)
	e.dispatchDueTasks(context.Background(), now)

	results, err := store.ListResults(task.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result (no overlap), got %d", len(results))
	}

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.NextRunAt == nil || *updated.NextRunAt == *task.NextRunAt {
		t.Error("expected next_run_at to remain scheduled (not executed, but present)")
	}
}

// S6-style stale-run skip: next_run_at before engine start time executes
// zero times and is rescheduled forward.
func TestDispatchDueTasks_StaleRunSkip(t *testing.T) {
	e, store, v := newTestEngine(t)
	now := time.Now()

	task, err := store.CreateTask(v, taskstore.RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	staleTime := now.Add(-2 * time.Hour)
	if err := store.ScheduleNextRunAt(task.ID, staleTime); err != nil {
		t.Fatal(err)
	}

	e.engineStartTime = now
	e.dispatchDueTasks(context.Background(), now)

	results, err := store.ListResults(task.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected zero executions for a stale run, got %d", len(results))
	}

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	nextRunAt, err := taskstore.ParseTime(*updated.NextRunAt)
	if err != nil {
		t.Fatal(err)
	}
	if nextRunAt.Before(e.engineStartTime) {
		t.Errorf("expected next_run_at rescheduled past engine start time, got %v", nextRunAt)
	}
}

// S6: engine Start() with one active system_boot task produces
// exactly one terminal result before Start returns.
func TestStart_BootHook(t *testing.T) {
	e, store, v := newTestEngine(t)

	task, err := store.CreateTask(v, taskstore.RawPayload{
		Name:        strPtr("on-boot"),
		TriggerType: strPtr("event"),
		EventType:   strPtr("system_boot"),
		ScriptBody:  strPtr("echo booted"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Stop(context.Background()) })

	results, err := store.ListResults(task.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result after Start() returns, got %d", len(results))
	}
	if results[0].TriggerReason != taskstore.ReasonSystemBoot {
		t.Errorf("expected trigger_reason=system_boot, got %q", results[0].TriggerReason)
	}
	if results[0].Status != taskstore.StatusSuccess && results[0].Status != taskstore.StatusFailed {
		t.Errorf("expected terminal status, got %q", results[0].Status)
	}
}
