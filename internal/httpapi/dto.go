package httpapi

import "github.com/jholhewres/opstaskd/internal/taskstore"

// taskPayload mirrors taskstore.RawPayload's shape for JSON decoding.
type taskPayload struct {
	Name               *string `json:"name"`
	Account            *string `json:"account"`
	TriggerType        *string `json:"trigger_type"`
	ScheduleExpression *string `json:"schedule_expression"`
	ConditionScript    *string `json:"condition_script"`
	ConditionInterval  *int    `json:"condition_interval"`
	EventType          *string `json:"event_type"`
	IsActive           *bool   `json:"is_active"`
	PreTaskIDs         any     `json:"pre_task_ids"`
	ScriptBody         *string `json:"script_body"`
}

func (p taskPayload) toRaw() taskstore.RawPayload {
	return taskstore.RawPayload{
		Name:               p.Name,
		Account:            p.Account,
		TriggerType:        p.TriggerType,
		ScheduleExpression: p.ScheduleExpression,
		ConditionScript:    p.ConditionScript,
		ConditionInterval:  p.ConditionInterval,
		EventType:          p.EventType,
		IsActive:           p.IsActive,
		PreTaskIDs:         p.PreTaskIDs,
		ScriptBody:         p.ScriptBody,
	}
}

// taskView is a Task annotated with its latest result, per the
// /api/tasks route table.
type taskView struct {
	ID                   int64        `json:"id"`
	Name                 string       `json:"name"`
	Account              string       `json:"account"`
	TriggerType          string       `json:"trigger_type"`
	ScheduleExpression   *string      `json:"schedule_expression"`
	ConditionScript      *string      `json:"condition_script"`
	ConditionInterval    int          `json:"condition_interval"`
	EventType            string       `json:"event_type"`
	IsActive             bool         `json:"is_active"`
	PreTaskIDs           []int64      `json:"pre_task_ids"`
	ScriptBody           string       `json:"script_body"`
	LastRunAt            *string      `json:"last_run_at"`
	NextRunAt            *string      `json:"next_run_at"`
	LastConditionCheckAt *string      `json:"last_condition_check_at"`
	CreatedAt            string       `json:"created_at"`
	UpdatedAt            string       `json:"updated_at"`
	LatestResult         *resultView  `json:"latest_result"`
}

func newTaskView(t *taskstore.Task, latest *taskstore.TaskResult) taskView {
	return taskView{
		ID:                   t.ID,
		Name:                 t.Name,
		Account:              t.Account,
		TriggerType:          string(t.TriggerType),
		ScheduleExpression:   t.ScheduleExpression,
		ConditionScript:      t.ConditionScript,
		ConditionInterval:    t.ConditionInterval,
		EventType:            string(t.EventType),
		IsActive:             t.IsActive,
		PreTaskIDs:           t.PreTaskIDs,
		ScriptBody:           t.ScriptBody,
		LastRunAt:            t.LastRunAt,
		NextRunAt:            t.NextRunAt,
		LastConditionCheckAt: t.LastConditionCheckAt,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		LatestResult:         newResultView(latest),
	}
}

// resultView is a TaskResult rendered with snake_case JSON keys.
type resultView struct {
	ID            int64   `json:"id"`
	TaskID        int64   `json:"task_id"`
	Status        string  `json:"status"`
	TriggerReason string  `json:"trigger_reason"`
	StartedAt     string  `json:"started_at"`
	FinishedAt    *string `json:"finished_at"`
	Log           *string `json:"log"`
}

func newResultView(r *taskstore.TaskResult) *resultView {
	if r == nil {
		return nil
	}
	return &resultView{
		ID:            r.ID,
		TaskID:        r.TaskID,
		Status:        string(r.Status),
		TriggerReason: r.TriggerReason,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Log:           r.Log,
	}
}

func newResultViews(results []*taskstore.TaskResult) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, *newResultView(r))
	}
	return out
}

// templateView is a Template rendered with snake_case JSON keys.
type templateView struct {
	ID         int64  `json:"id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	ScriptBody string `json:"script_body"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func newTemplateView(t *taskstore.Template) templateView {
	return templateView{
		ID:         t.ID,
		Key:        t.Key,
		Name:       t.Name,
		ScriptBody: t.ScriptBody,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

type templatePayload struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	ScriptBody string `json:"script_body"`
}
