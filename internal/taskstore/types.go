// Package taskstore implements the task/result/template catalog: the
// Payload Validator and the SQLite-backed Task Store.
package taskstore

import (
	"time"
)

// TriggerType selects whether a task fires on a cron schedule or on an
// event (condition script, boot, shutdown).
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

// EventType further qualifies an event-triggered task.
type EventType string

const (
	EventScript          EventType = "script"
	EventSystemBoot      EventType = "system_boot"
	EventSystemShutdown  EventType = "system_shutdown"
)

// ResultStatus is the lifecycle state of a TaskResult.
type ResultStatus string

const (
	StatusRunning ResultStatus = "running"
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
)

// Trigger reason tags recorded on TaskResult.trigger_reason.
const (
	ReasonSchedule        = "schedule"
	ReasonCondition       = "condition"
	ReasonManual          = "manual"
	ReasonSystemBoot      = "system_boot"
	ReasonSystemShutdown  = "system_shutdown"
)

// TimeLayout is the local wall-clock, no-timezone timestamp format
// used for every persisted timestamp: space-separated date and time
// at second precision. Parsing tolerates a "T" separator as well.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t (already in local wall-clock terms) per TimeLayout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses a persisted timestamp, tolerating "T" or space
// between date and time, and reads it as local time — these values are
// never reinterpreted as UTC. Input with a trailing timezone offset or
// fractional seconds is rejected.
func ParseTime(s string) (time.Time, error) {
	if len(s) > 10 && s[10] == 'T' {
		s = s[:10] + " " + s[11:]
	}
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// Task is the fully validated, storable task record.
type Task struct {
	ID                   int64
	Name                 string
	Account              string
	TriggerType          TriggerType
	ScheduleExpression   *string
	ConditionScript      *string
	ConditionInterval    int
	EventType            EventType
	IsActive             bool
	PreTaskIDs           []int64
	ScriptBody           string
	LastRunAt            *string
	NextRunAt            *string
	LastConditionCheckAt *string
	CreatedAt            string
	UpdatedAt            string
}

// TaskResult is one execution record for a Task.
type TaskResult struct {
	ID            int64
	TaskID        int64
	Status        ResultStatus
	TriggerReason string
	StartedAt     string
	FinishedAt    *string
	Log           *string
}

// Template is a reusable script body, independent of any task.
type Template struct {
	ID         int64
	Key        string
	Name       string
	ScriptBody string
	CreatedAt  string
	UpdatedAt  string
}

// RawPayload is the unvalidated input accepted by the Payload
// Validator, typically decoded straight from an HTTP request body.
// Pointer fields distinguish "absent" (nil) from "explicitly cleared"
// so that update_task can merge over an existing row.
type RawPayload struct {
	Name               *string
	Account            *string
	TriggerType        *string
	ScheduleExpression *string
	ConditionScript    *string
	ConditionInterval  *int
	EventType          *string
	IsActive           *bool
	PreTaskIDs         any // []int64, []any of numbers or numeric strings (from JSON), or a JSON-encoded string
	ScriptBody         *string
}
