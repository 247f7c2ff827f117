package taskstore

import (
	"database/sql"
	"encoding/json"
)

const taskSelectColumns = `SELECT
	id, name, account, trigger_type, schedule_expression, condition_script,
	condition_interval, event_type, is_active, pre_task_ids, script_body,
	last_run_at, next_run_at, last_condition_check_at, created_at, updated_at`

const resultSelectColumns = `SELECT id, task_id, status, trigger_reason, started_at, finished_at, log`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(sc scanner) (*Task, error) {
	var t Task
	var triggerType, eventType string
	var isActive int
	var preJSON string

	err := sc.Scan(
		&t.ID, &t.Name, &t.Account, &triggerType, &t.ScheduleExpression, &t.ConditionScript,
		&t.ConditionInterval, &eventType, &isActive, &preJSON, &t.ScriptBody,
		&t.LastRunAt, &t.NextRunAt, &t.LastConditionCheckAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TriggerType = TriggerType(triggerType)
	t.EventType = EventType(eventType)
	t.IsActive = isActive != 0

	var ids []int64
	if preJSON != "" {
		if err := json.Unmarshal([]byte(preJSON), &ids); err != nil {
			return nil, err
		}
	}
	t.PreTaskIDs = ids

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanResult(sc scanner) (*TaskResult, error) {
	var r TaskResult
	var status string
	err := sc.Scan(&r.ID, &r.TaskID, &status, &r.TriggerReason, &r.StartedAt, &r.FinishedAt, &r.Log)
	if err != nil {
		return nil, err
	}
	r.Status = ResultStatus(status)
	return &r, nil
}

func scanResultRows(rows *sql.Rows) (*TaskResult, error) {
	return scanResult(rows)
}
