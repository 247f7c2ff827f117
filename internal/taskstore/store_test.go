package taskstore

import (
	"path/filepath"
	"testing"
	"time"
)

type fakeAccounts struct{}

func (fakeAccounts) EnsureAllowed(name string) (string, error) {
	if name == "" {
		return "opstask", nil
	}
	return name, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateTask_ScheduleRequiresExpression(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	_, err := s.CreateTask(v, RawPayload{
		Name:        strPtr("job1"),
		TriggerType: strPtr("schedule"),
		ScriptBody:  strPtr("echo hi"),
	})
	if err == nil {
		t.Fatal("expected ValidationError for missing schedule_expression")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Field != "schedule_expression" {
		t.Errorf("expected field schedule_expression, got %q", ve.Field)
	}
}

func TestCreateTask_NameConflict(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	p := RawPayload{
		Name:               strPtr("job1"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("*/5 * * * *"),
		ScriptBody:         strPtr("echo hi"),
	}
	if _, err := s.CreateTask(v, p); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateTask(v, p)
	if _, ok := err.(*NameConflictError); !ok {
		t.Fatalf("expected *NameConflictError, got %T: %v", err, err)
	}
}

func TestCreateTask_NextRunAtSet(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	task, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("job1"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("*/5 * * * *"),
		ScriptBody:         strPtr("echo hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.NextRunAt == nil {
		t.Fatal("expected next_run_at to be set")
	}
	if task.ConditionScript != nil {
		t.Error("expected condition_script nulled for schedule task")
	}
}

func TestHasRunningInstance_NoOverlap(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	task, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("job1"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo hi"),
	})
	if err != nil {
		t.Fatal(err)
	}

	id1, err := s.RecordResultStart(task.ID, ReasonSchedule)
	if err != nil {
		t.Fatal(err)
	}
	if id1 == 0 {
		t.Fatal("expected first RecordResultStart to succeed")
	}

	id2, err := s.RecordResultStart(task.ID, ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != 0 {
		t.Fatal("expected second RecordResultStart to be refused while one is running")
	}

	running, err := s.HasRunningInstance(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !running {
		t.Fatal("expected running instance to be reported")
	}

	if err := s.FinalizeResult(id1, StatusSuccess, "ok"); err != nil {
		t.Fatal(err)
	}
	running, err = s.HasRunningInstance(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if running {
		t.Fatal("expected no running instance after finalize")
	}
}

func TestDependenciesMet(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	a, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("b"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo b"),
		PreTaskIDs:         []any{float64(a.ID)},
	})
	if err != nil {
		t.Fatal(err)
	}

	met, err := s.DependenciesMet(b)
	if err != nil {
		t.Fatal(err)
	}
	if met {
		t.Fatal("expected deps unmet: A has no results")
	}

	id, err := s.RecordResultStart(a.ID, ReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.FinalizeResult(id, StatusSuccess, "ok"); err != nil {
		t.Fatal(err)
	}

	met, err = s.DependenciesMet(b)
	if err != nil {
		t.Fatal(err)
	}
	if !met {
		t.Fatal("expected deps met after A succeeds")
	}
}

func TestTemplateExportImport(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateTemplate("", "Backup DB", "pg_dump foo"); err != nil {
		t.Fatal(err)
	}

	exported, err := s.ExportTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := exported["backup_db"]; !ok {
		t.Fatalf("expected auto-generated key backup_db, got %v", exported)
	}

	ins, upd, err := s.ImportTemplates(map[string]TemplateExport{
		"backup_db": {Name: "Backup DB", ScriptBody: "pg_dump bar"},
		"new_tpl":   {Name: "New", ScriptBody: "echo new"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ins != 1 || upd != 1 {
		t.Errorf("expected 1 inserted, 1 updated; got inserted=%d updated=%d", ins, upd)
	}
}

func TestPreTaskIDsDedupAndSelfDrop(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})

	a, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("b"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("* * * * *"),
		ScriptBody:         strPtr("echo b"),
		PreTaskIDs:         []any{float64(a.ID), float64(a.ID)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.PreTaskIDs) != 1 {
		t.Fatalf("expected deduped pre_task_ids, got %v", b.PreTaskIDs)
	}

	updated, err := s.UpdateTask(v, b.ID, RawPayload{
		PreTaskIDs: []any{float64(a.ID), float64(b.ID)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.PreTaskIDs) != 1 || updated.PreTaskIDs[0] != a.ID {
		t.Fatalf("expected self-reference dropped, got %v", updated.PreTaskIDs)
	}
}

func TestFetchDueTasks(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(fakeAccounts{})
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local) }
	v.Now = s.now

	_, err := s.CreateTask(v, RawPayload{
		Name:               strPtr("a"),
		TriggerType:        strPtr("schedule"),
		ScheduleExpression: strPtr("*/5 * * * *"),
		ScriptBody:         strPtr("echo a"),
	})
	if err != nil {
		t.Fatal(err)
	}

	due, err := s.FetchDueTasks(time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due tasks yet, got %d", len(due))
	}

	due, err = s.FetchDueTasks(time.Date(2025, 1, 1, 0, 10, 0, 0, time.Local))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due task, got %d", len(due))
	}
}
