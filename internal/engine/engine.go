// Package engine implements the Scheduler Engine: the single
// background loop that drives due-time dispatch, event-condition
// polling, and boot/shutdown hooks.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/opstaskd/internal/cronmatch"
	"github.com/jholhewres/opstaskd/internal/runner"
	"github.com/jholhewres/opstaskd/internal/taskstore"
)

// tickInterval is the engine's fixed cadence.
const tickInterval = 1 * time.Second

// retryWindow is how far out a dependency-blocked schedule task is
// rescheduled.
const retryWindow = 1 * time.Minute

// stopGracePeriod bounds how long Stop waits for the loop goroutine
// to notice the stop flag and exit.
const stopGracePeriod = 5 * time.Second

// Engine is the Scheduler Engine.
type Engine struct {
	store  *taskstore.Store
	runner *runner.Runner
	logger *slog.Logger

	taskTimeout      time.Duration
	conditionTimeout time.Duration

	engineStartTime time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	workers sync.WaitGroup
}

// Config holds the engine's tunable timeouts.
type Config struct {
	TaskTimeout      time.Duration
	ConditionTimeout time.Duration
}

// New constructs an Engine. logger must not be nil.
func New(store *taskstore.Store, r *runner.Runner, logger *slog.Logger, cfg Config) *Engine {
	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = runner.DefaultTaskTimeout
	}
	conditionTimeout := cfg.ConditionTimeout
	if conditionTimeout <= 0 {
		conditionTimeout = runner.DefaultConditionTimeout
	}
	return &Engine{
		store:            store,
		runner:           r,
		logger:           logger,
		taskTimeout:      taskTimeout,
		conditionTimeout: conditionTimeout,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start records the engine's start time, runs all active
// system_boot event tasks synchronously-spawned but
// parallel-executed, awaits them, then launches the background tick
// loop and returns.
func (e *Engine) Start(ctx context.Context) error {
	e.engineStartTime = time.Now()

	if err := e.runLifecycleHooks(ctx, taskstore.EventSystemBoot, taskstore.ReasonSystemBoot); err != nil {
		e.logger.Warn("boot hook execution failed", "error", err)
	}

	go e.loop(ctx)
	return nil
}

// Stop sets the stop flag, runs all active system_shutdown event
// tasks and awaits them (no overall deadline — individual tasks are
// still bounded by the task timeout), then joins the loop goroutine
// with a bounded grace period.
func (e *Engine) Stop(ctx context.Context) error {
	close(e.stopCh)

	if err := e.runLifecycleHooks(ctx, taskstore.EventSystemShutdown, taskstore.ReasonSystemShutdown); err != nil {
		e.logger.Warn("shutdown hook execution failed", "error", err)
	}

	select {
	case <-e.doneCh:
	case <-time.After(stopGracePeriod):
		e.logger.Warn("scheduler loop did not exit within grace period")
	}
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one iteration of due-time dispatch and event-condition
// polling. Panics from either sub-loop are recovered and logged so a
// single bad tick never terminates the engine.
func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered in scheduler tick", "panic", r)
		}
	}()

	now := time.Now()
	e.dispatchDueTasks(ctx, now)
	e.pollEventConditions(ctx, now)
}

func (e *Engine) dispatchDueTasks(ctx context.Context, now time.Time) {
	due, err := e.store.FetchDueTasks(now)
	if err != nil {
		e.logger.Error("fetching due tasks failed", "error", err)
		return
	}

	for _, task := range due {
		if task.NextRunAt == nil {
			continue
		}
		nextRunAt, err := taskstore.ParseTime(*task.NextRunAt)
		if err != nil {
			e.logger.Error("parsing next_run_at failed", "task_id", task.ID, "error", err)
			continue
		}

		if nextRunAt.Before(e.engineStartTime) {
			// Stale run left over from before restart: do not
			// execute, just reschedule forward.
			e.rescheduleFromExpr(task, e.engineStartTime)
			continue
		}

		running, err := e.store.HasRunningInstance(task.ID)
		if err != nil {
			e.logger.Error("checking running instance failed", "task_id", task.ID, "error", err)
			continue
		}
		if running {
			continue
		}

		met, err := e.store.DependenciesMet(task)
		if err != nil {
			e.logger.Error("checking dependencies failed", "task_id", task.ID, "error", err)
			continue
		}
		if !met {
			if err := e.store.ScheduleNextRunAt(task.ID, now.Add(retryWindow)); err != nil {
				e.logger.Error("rescheduling dependency-blocked task failed", "task_id", task.ID, "error", err)
			}
			continue
		}

		e.dispatch(ctx, task, taskstore.ReasonSchedule)
		e.rescheduleFromExpr(task, now)
	}
}

func (e *Engine) rescheduleFromExpr(task *taskstore.Task, base time.Time) {
	if task.ScheduleExpression == nil {
		return
	}
	expr, err := cronmatch.Parse(*task.ScheduleExpression)
	if err != nil {
		e.logger.Error("reparsing schedule expression failed", "task_id", task.ID, "error", err)
		return
	}
	if err := e.store.ScheduleNextRun(task.ID, expr, base); err != nil {
		e.logger.Error("rescheduling next run failed", "task_id", task.ID, "error", err)
	}
}

func (e *Engine) pollEventConditions(ctx context.Context, now time.Time) {
	tasks, err := e.store.FetchEventTasks(taskstore.EventScript)
	if err != nil {
		e.logger.Error("fetching condition tasks failed", "error", err)
		return
	}

	for _, task := range tasks {
		if task.ConditionScript == nil {
			continue
		}
		if task.LastConditionCheckAt != nil {
			last, err := taskstore.ParseTime(*task.LastConditionCheckAt)
			if err == nil && now.Sub(last) < time.Duration(task.ConditionInterval)*time.Second {
				continue
			}
		}

		if err := e.store.UpdateConditionCheck(task.ID); err != nil {
			e.logger.Error("stamping condition check failed", "task_id", task.ID, "error", err)
			continue
		}

		satisfied, err := e.runner.RunCondition(ctx, *task.ConditionScript, e.conditionTimeout)
		if err != nil || !satisfied {
			if err != nil {
				e.logger.Warn("condition script execution failed", "task_id", task.ID, "error", err)
			}
			continue
		}

		running, err := e.store.HasRunningInstance(task.ID)
		if err != nil {
			e.logger.Error("checking running instance failed", "task_id", task.ID, "error", err)
			continue
		}
		if running {
			continue
		}

		met, err := e.store.DependenciesMet(task)
		if err != nil {
			e.logger.Error("checking dependencies failed", "task_id", task.ID, "error", err)
			continue
		}
		if !met {
			continue
		}

		e.dispatch(ctx, task, taskstore.ReasonCondition)
	}
}

// RunManual enqueues a manual run, mirroring the engine's own
// dispatch gating: 409 Conflict if already running, dependency error
// if deps are unmet.
func (e *Engine) RunManual(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return taskstore.ErrNotFound
	}

	running, err := e.store.HasRunningInstance(taskID)
	if err != nil {
		return err
	}
	if running {
		return &taskstore.ConflictError{Msg: "task is already running"}
	}

	met, err := e.store.DependenciesMet(task)
	if err != nil {
		return err
	}
	if !met {
		return &taskstore.DependencyError{Msg: "dependencies are not met"}
	}

	e.dispatch(ctx, task, taskstore.ReasonManual)
	return nil
}

// dispatch claims a running slot via RecordResultStart (an atomic
// compare-and-insert — see taskstore.Store.RecordResultStart) and, if
// claimed, spawns a detached worker goroutine that executes the task
// and writes back its terminal result.
func (e *Engine) dispatch(ctx context.Context, task *taskstore.Task, reason string) {
	resultID, err := e.store.RecordResultStart(task.ID, reason)
	if err != nil {
		e.logger.Error("recording result start failed", "task_id", task.ID, "error", err)
		return
	}
	if resultID == 0 {
		// Lost the race to another dispatcher; nothing to do.
		return
	}

	e.workers.Add(1)
	go e.execute(ctx, task, resultID, reason)
}

func (e *Engine) execute(ctx context.Context, task *taskstore.Task, resultID int64, reason string) {
	defer e.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered in task execution", "task_id", task.ID, "panic", r)
			_ = e.store.FinalizeResult(resultID, taskstore.StatusFailed, fmt.Sprintf("panic: %v", r))
			_ = e.store.UpdateLastRun(task.ID)
		}
	}()

	status := taskstore.StatusFailed
	logText := ""

	result, err := e.runner.Run(ctx, runner.Request{
		TaskID:        task.ID,
		TaskName:      task.Name,
		Account:       task.Account,
		ScriptBody:    task.ScriptBody,
		TriggerReason: reason,
		Timeout:       e.taskTimeout,
	})
	switch {
	case err != nil:
		logText = err.Error()
	case result.TimedOut:
		logText = result.Log
	case result.ExitCode == 0:
		status = taskstore.StatusSuccess
		logText = result.Log
	default:
		logText = result.Log
	}

	if ferr := e.store.FinalizeResult(resultID, status, logText); ferr != nil {
		e.logger.Error("finalizing result failed", "task_id", task.ID, "result_id", resultID, "error", ferr)
	}
	if uerr := e.store.UpdateLastRun(task.ID); uerr != nil {
		e.logger.Error("updating last_run_at failed", "task_id", task.ID, "error", uerr)
	}
}

func (e *Engine) runLifecycleHooks(ctx context.Context, eventType taskstore.EventType, reason string) error {
	tasks, err := e.store.FetchEventTasks(eventType)
	if err != nil {
		return fmt.Errorf("fetching %s tasks: %w", eventType, err)
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		resultID, err := e.store.RecordResultStart(task.ID, reason)
		if err != nil {
			e.logger.Error("recording lifecycle result start failed", "task_id", task.ID, "error", err)
			continue
		}
		if resultID == 0 {
			continue
		}
		wg.Add(1)
		go func(task *taskstore.Task, resultID int64) {
			defer wg.Done()
			e.runLifecycleTask(ctx, task, resultID, reason)
		}(task, resultID)
	}
	wg.Wait()
	return nil
}

func (e *Engine) runLifecycleTask(ctx context.Context, task *taskstore.Task, resultID int64, reason string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered in lifecycle task", "task_id", task.ID, "panic", r)
			_ = e.store.FinalizeResult(resultID, taskstore.StatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := e.runner.Run(ctx, runner.Request{
		TaskID:        task.ID,
		TaskName:      task.Name,
		Account:       task.Account,
		ScriptBody:    task.ScriptBody,
		TriggerReason: reason,
		Timeout:       e.taskTimeout,
	})

	status := taskstore.StatusFailed
	logText := ""
	switch {
	case err != nil:
		logText = err.Error()
	case result.ExitCode == 0 && !result.TimedOut:
		status = taskstore.StatusSuccess
		logText = result.Log
	default:
		logText = result.Log
	}

	if ferr := e.store.FinalizeResult(resultID, status, logText); ferr != nil {
		e.logger.Error("finalizing lifecycle result failed", "task_id", task.ID, "error", ferr)
	}
	_ = e.store.UpdateLastRun(task.ID)
}
