package taskstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/opstaskd/internal/cronmatch"
)

// Store is the single-writer SQLite-backed Task Store. All operations
// acquire mu, serializing writes and giving reads a consistent
// snapshot, per spec: "a single mutex serializes writes; reads
// acquire the same lock."
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (creating if absent) the SQLite database at path with
// WAL journaling, a busy timeout, and foreign keys enforced, then
// brings the schema up to CurrentSchemaVersion.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single writer: SQLite only tolerates one writer connection at
	// a time and the store's own mutex already serializes access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nowString() string {
	return FormatTime(s.now())
}

// CreateTask validates p, inserts the resulting row, and returns the
// full record. Fails with *NameConflictError if name is a duplicate.
func (s *Store) CreateTask(v *Validator, p RawPayload) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := v.Normalize(p, nil)
	if err != nil {
		return nil, err
	}

	now := s.nowString()
	task.CreatedAt = now
	task.UpdatedAt = now

	preJSON, err := json.Marshal(task.PreTaskIDs)
	if err != nil {
		return nil, err
	}

	res, err := s.db.Exec(`
		INSERT INTO tasks (
			name, account, trigger_type, schedule_expression, condition_script,
			condition_interval, event_type, is_active, pre_task_ids, script_body,
			last_run_at, next_run_at, last_condition_check_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Name, task.Account, string(task.TriggerType), task.ScheduleExpression, task.ConditionScript,
		task.ConditionInterval, string(task.EventType), boolToInt(task.IsActive), string(preJSON), task.ScriptBody,
		task.LastRunAt, task.NextRunAt, task.LastConditionCheckAt, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &NameConflictError{Field: "name", Value: task.Name}
		}
		return nil, fmt.Errorf("inserting task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	task.ID = id
	return task, nil
}

// UpdateTask merges p over the existing row, re-validates, and writes
// the result. Returns nil, nil if id does not exist.
func (s *Store) UpdateTask(v *Validator, id int64, p RawPayload) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getTaskLocked(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	task, err := v.Normalize(p, existing)
	if err != nil {
		return nil, err
	}
	task.ID = id
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = s.nowString()

	preJSON, err := json.Marshal(task.PreTaskIDs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		UPDATE tasks SET
			name = ?, account = ?, trigger_type = ?, schedule_expression = ?, condition_script = ?,
			condition_interval = ?, event_type = ?, is_active = ?, pre_task_ids = ?, script_body = ?,
			last_run_at = ?, next_run_at = ?, last_condition_check_at = ?, updated_at = ?
		WHERE id = ?`,
		task.Name, task.Account, string(task.TriggerType), task.ScheduleExpression, task.ConditionScript,
		task.ConditionInterval, string(task.EventType), boolToInt(task.IsActive), string(preJSON), task.ScriptBody,
		task.LastRunAt, task.NextRunAt, task.LastConditionCheckAt, task.UpdatedAt, id,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &NameConflictError{Field: "name", Value: task.Name}
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return task, nil
}

// DeleteTask removes the task and cascades to its results.
func (s *Store) DeleteTask(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTasks returns all tasks ordered by id ascending.
func (s *Store) ListTasks() ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(taskSelectColumns + ` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTask returns nil if id does not exist.
func (s *Store) GetTask(id int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTaskLocked(id)
}

func (s *Store) getTaskLocked(id int64) (*Task, error) {
	rows, err := s.db.Query(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("fetching task: %w", err)
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// FetchDueTasks returns schedule tasks whose next_run_at has arrived,
// ordered by next_run_at.
func (s *Store) FetchDueTasks(now time.Time) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		taskSelectColumns+` FROM tasks WHERE trigger_type = ? AND is_active = 1 AND next_run_at IS NOT NULL AND next_run_at <= ? ORDER BY next_run_at ASC`,
		string(TriggerSchedule), FormatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// FetchEventTasks returns active event tasks, optionally filtered by
// event type. An empty eventType fetches all event tasks.
func (s *Store) FetchEventTasks(eventType EventType) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := taskSelectColumns + ` FROM tasks WHERE trigger_type = ? AND is_active = 1`
	args := []any{string(TriggerEvent)}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching event tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// RecordResultStart inserts a running result, guarded by a single
// INSERT ... SELECT WHERE NOT EXISTS so the "no running instance"
// check and the insert are atomic with respect to every other store
// operation — the tightened claim the open question in spec.md §9
// invites. Returns 0, nil if a running instance already exists.
func (s *Store) RecordResultStart(taskID int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowString()
	res, err := s.db.Exec(`
		INSERT INTO results (task_id, status, trigger_reason, started_at)
		SELECT ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM results WHERE task_id = ? AND status = ?)`,
		taskID, string(StatusRunning), reason, now, taskID, string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("recording result start: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}

// FinalizeResult sets finished_at and the terminal status/log.
func (s *Store) FinalizeResult(id int64, status ResultStatus, logText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE results SET status = ?, finished_at = ?, log = ? WHERE id = ?`,
		string(status), s.nowString(), logText, id)
	if err != nil {
		return fmt.Errorf("finalizing result: %w", err)
	}
	return nil
}

// HasRunningInstance reports whether any running result exists for
// taskID. Advisory — see RecordResultStart for the atomic claim path.
func (s *Store) HasRunningInstance(taskID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasRunningInstanceLocked(taskID)
}

func (s *Store) hasRunningInstanceLocked(taskID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM results WHERE task_id = ? AND status = ?`, taskID, string(StatusRunning)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking running instance: %w", err)
	}
	return n > 0, nil
}

// UpdateLastRun stamps last_run_at with the current time.
func (s *Store) UpdateLastRun(taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE tasks SET last_run_at = ? WHERE id = ?`, s.nowString(), taskID)
	return err
}

// ScheduleNextRun computes the next cron match after base and writes
// it to next_run_at.
func (s *Store) ScheduleNextRun(taskID int64, expr *cronmatch.Expr, base time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := expr.NextAfter(base)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE tasks SET next_run_at = ? WHERE id = ?`, FormatTime(next), taskID)
	return err
}

// ScheduleNextRunAt writes an explicit next_run_at value, used by the
// engine's dependency-retry window (now + 1 minute) where no cron
// expression evaluation is involved.
func (s *Store) ScheduleNextRunAt(taskID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE tasks SET next_run_at = ? WHERE id = ?`, FormatTime(at), taskID)
	return err
}

// UpdateConditionCheck stamps last_condition_check_at with the
// current time.
func (s *Store) UpdateConditionCheck(taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE tasks SET last_condition_check_at = ? WHERE id = ?`, s.nowString(), taskID)
	return err
}

// LatestResult returns the most recent result for taskID, or nil if
// the task has never run.
func (s *Store) LatestResult(taskID int64) (*TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestResultLocked(taskID)
}

func (s *Store) latestResultLocked(taskID int64) (*TaskResult, error) {
	row := s.db.QueryRow(resultSelectColumns+` FROM results WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListResults pages through a task's results newest-first.
func (s *Store) ListResults(taskID int64, limit, offset int) ([]*TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(resultSelectColumns+` FROM results WHERE task_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var out []*TaskResult
	for rows.Next() {
		r, err := scanResultRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteResults purges results for taskID, optionally restricted to a
// single resultID (0 means all).
func (s *Store) DeleteResults(taskID, resultID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if resultID > 0 {
		res, err = s.db.Exec(`DELETE FROM results WHERE task_id = ? AND id = ?`, taskID, resultID)
	} else {
		res, err = s.db.Exec(`DELETE FROM results WHERE task_id = ?`, taskID)
	}
	if err != nil {
		return 0, fmt.Errorf("deleting results: %w", err)
	}
	return res.RowsAffected()
}

// DependenciesMet reports whether every pre_task_id of task resolves
// to an existing task whose most recent result has status success. A
// missing prior task id also blocks, per spec.
func (s *Store) DependenciesMet(task *Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, depID := range task.PreTaskIDs {
		dep, err := s.getTaskLocked(depID)
		if err != nil {
			return false, err
		}
		if dep == nil {
			return false, nil
		}
		result, err := s.latestResultLocked(depID)
		if err != nil {
			return false, err
		}
		if result == nil || result.Status != StatusSuccess {
			return false, nil
		}
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
