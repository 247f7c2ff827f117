package taskstore

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/opstaskd/internal/cronmatch"
)

// AccountChecker is the Account Directory's contract as seen by the
// validator. ensure_account_allowed returns the resolved account name
// (unchanged on success) or a ValidationError.
type AccountChecker interface {
	EnsureAllowed(name string) (string, error)
}

const minConditionInterval = 10

// Validator normalizes raw payloads into storable Task records.
type Validator struct {
	Accounts AccountChecker
	Now      func() time.Time
}

func NewValidator(accounts AccountChecker) *Validator {
	return &Validator{Accounts: accounts, Now: time.Now}
}

// Normalize applies the Payload Validator rules in order, producing a
// Task ready for storage. existing is nil on create; on update it is
// the current row being merged over (its id is used to drop
// self-referential pre_task_ids).
func (v *Validator) Normalize(p RawPayload, existing *Task) (*Task, error) {
	t := &Task{}
	if existing != nil {
		*t = *existing
	}

	// 1. trigger_type
	triggerType := string(t.TriggerType)
	if p.TriggerType != nil {
		triggerType = strings.TrimSpace(*p.TriggerType)
	}
	switch TriggerType(triggerType) {
	case TriggerSchedule, TriggerEvent:
		t.TriggerType = TriggerType(triggerType)
	default:
		return nil, validationErr("trigger_type", "must be 'schedule' or 'event'")
	}

	// 2. name, script_body non-empty after trimming
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if t.Name == "" {
		return nil, validationErr("name", "is required")
	}
	if p.ScriptBody != nil {
		t.ScriptBody = strings.TrimSpace(*p.ScriptBody)
	}
	if t.ScriptBody == "" {
		return nil, validationErr("script_body", "is required")
	}

	// 3. account
	account := t.Account
	if p.Account != nil {
		account = strings.TrimSpace(*p.Account)
	}
	resolved, err := v.Accounts.EnsureAllowed(account)
	if err != nil {
		return nil, err
	}
	t.Account = resolved

	// 4. condition_interval clamp
	interval := t.ConditionInterval
	if p.ConditionInterval != nil {
		interval = *p.ConditionInterval
	}
	if interval < minConditionInterval {
		interval = minConditionInterval
	}
	t.ConditionInterval = interval

	// 5. pre_task_ids
	ids, err := coercePreTaskIDs(p.PreTaskIDs, existingPreTaskIDs(t, p))
	if err != nil {
		return nil, err
	}
	t.PreTaskIDs = dedupDropSelf(ids, t.ID)

	// 6/7. mode-specific normalization — always re-derived after the
	// merge, per the safe reading of the update-merge open question:
	// never trust a merged value for a field the other mode owns.
	now := v.Now()
	switch t.TriggerType {
	case TriggerSchedule:
		expr := ""
		if t.ScheduleExpression != nil {
			expr = *t.ScheduleExpression
		}
		if p.ScheduleExpression != nil {
			expr = strings.TrimSpace(*p.ScheduleExpression)
		}
		if expr == "" {
			return nil, validationErr("schedule_expression", "is required")
		}
		parsed, err := cronmatch.Parse(expr)
		if err != nil {
			return nil, validationErr("schedule_expression", err.Error())
		}
		changed := existing == nil || existing.ScheduleExpression == nil || *existing.ScheduleExpression != expr
		t.ScheduleExpression = &expr
		t.ConditionScript = nil
		t.EventType = EventScript
		if changed || t.NextRunAt == nil {
			next, err := parsed.NextAfter(now)
			if err != nil {
				return nil, validationErr("schedule_expression", err.Error())
			}
			nextStr := FormatTime(next)
			t.NextRunAt = &nextStr
		}

	case TriggerEvent:
		t.ScheduleExpression = nil
		eventType := string(t.EventType)
		if p.EventType != nil {
			eventType = strings.TrimSpace(*p.EventType)
		}
		switch EventType(eventType) {
		case EventScript:
			t.EventType = EventScript
			script := ""
			if t.ConditionScript != nil {
				script = *t.ConditionScript
			}
			if p.ConditionScript != nil {
				script = strings.TrimSpace(*p.ConditionScript)
			}
			if script == "" {
				return nil, validationErr("condition_script", "is required for event_type 'script'")
			}
			t.ConditionScript = &script
		case EventSystemBoot, EventSystemShutdown:
			t.EventType = EventType(eventType)
			t.ConditionScript = nil
			t.LastConditionCheckAt = nil
		default:
			return nil, validationErr("event_type", "must be 'script', 'system_boot', or 'system_shutdown'")
		}
	}

	// is_active
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	} else if existing == nil {
		t.IsActive = true
	}

	return t, nil
}

func existingPreTaskIDs(t *Task, p RawPayload) []int64 {
	if p.PreTaskIDs != nil {
		return nil
	}
	return t.PreTaskIDs
}

// coercePreTaskIDs accepts a []int64, a decoded JSON array ([]any of
// float64, json.Number or numeric strings), or a JSON-encoded string, and
// returns the coerced integer ids. If raw is nil, fallback is used
// (the existing row's ids, for partial updates).
func coercePreTaskIDs(raw any, fallback []int64) ([]int64, error) {
	if raw == nil {
		return fallback, nil
	}

	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		var nums []json.Number
		if err := json.Unmarshal([]byte(s), &nums); err != nil {
			return nil, validationErr("pre_task_ids", "must be a JSON array of integers")
		}
		return numbersToInt64(nums)
	case []int64:
		return v, nil
	case []any:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				ids = append(ids, int64(n))
			case json.Number:
				i, err := n.Int64()
				if err != nil {
					return nil, validationErr("pre_task_ids", "must contain integers")
				}
				ids = append(ids, i)
			case string:
				i, err := strconv.ParseInt(n, 10, 64)
				if err != nil {
					return nil, validationErr("pre_task_ids", "must contain integers")
				}
				ids = append(ids, i)
			default:
				return nil, validationErr("pre_task_ids", "must contain integers")
			}
		}
		return ids, nil
	default:
		return nil, validationErr("pre_task_ids", "unsupported type")
	}
}

func numbersToInt64(nums []json.Number) ([]int64, error) {
	ids := make([]int64, 0, len(nums))
	for _, n := range nums {
		i, err := n.Int64()
		if err != nil {
			return nil, validationErr("pre_task_ids", "must contain integers")
		}
		ids = append(ids, i)
	}
	return ids, nil
}

// dedupDropSelf removes any id equal to selfID and deduplicates while
// preserving order.
func dedupDropSelf(ids []int64, selfID int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == selfID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
