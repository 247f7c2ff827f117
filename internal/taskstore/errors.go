package taskstore

import "fmt"

// ValidationError is returned by the Payload Validator and Account
// Directory; Field names the offending input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// NameConflictError is a unique-constraint violation on tasks.name or
// templates.key.
type NameConflictError struct {
	Field string
	Value string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

// ErrNotFound indicates a missing task, template, or result.
var ErrNotFound = fmt.Errorf("not found")

// ConflictError indicates a manual run request against a task that
// already has a running instance.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// DependencyError indicates that a task's pre_task_ids are not all
// satisfied.
type DependencyError struct {
	Msg string
}

func (e *DependencyError) Error() string { return e.Msg }
