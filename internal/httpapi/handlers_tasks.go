package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jholhewres/opstaskd/internal/taskstore"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) taskViewWithResult(t *taskstore.Task) (taskView, error) {
	latest, err := s.store.LatestResult(t.ID)
	if err != nil {
		return taskView{}, err
	}
	return newTaskView(t, latest), nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		v, err := s.taskViewWithResult(t)
		if err != nil {
			writeError(w, s.logger.Warn, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var p taskPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	task, err := s.store.CreateTask(s.validator, p.toRaw())
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	v, err := s.taskViewWithResult(task)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	task, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	if task == nil {
		writeError(w, s.logger.Warn, taskstore.ErrNotFound)
		return
	}
	v, err := s.taskViewWithResult(task)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	var p taskPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	task, err := s.store.UpdateTask(s.validator, id, p.toRaw())
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	if task == nil {
		writeError(w, s.logger.Warn, taskstore.ErrNotFound)
		return
	}
	v, err := s.taskViewWithResult(task)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	deleted, err := s.store.DeleteTask(id)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	if !deleted {
		writeError(w, s.logger.Warn, taskstore.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	if err := s.engine.RunManual(r.Context(), id); err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": true})
}

type togglePayload struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	task, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	if task == nil {
		writeError(w, s.logger.Warn, taskstore.ErrNotFound)
		return
	}

	var p togglePayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
			return
		}
	}
	target := !task.IsActive
	if p.IsActive != nil {
		target = *p.IsActive
	}

	updated, err := s.store.UpdateTask(s.validator, id, taskstore.RawPayload{IsActive: &target})
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	v, err := s.taskViewWithResult(updated)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	results, err := s.store.ListResults(id, limit, offset)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultViews(results))
}

func (s *Server) handleDeleteResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return
	}
	var resultID int64
	if raw := r.PathValue("result_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid result id"})
			return
		}
		resultID = parsed
	}
	n, err := s.store.DeleteResults(id, resultID)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

type batchPayload struct {
	Action  string  `json:"action"`
	TaskIDs []int64 `json:"task_ids"`
}

type batchResult struct {
	Deleted   []int64 `json:"deleted"`
	Updated   []int64 `json:"updated"`
	Unchanged []int64 `json:"unchanged"`
	Queued    []int64 `json:"queued"`
	Running   []int64 `json:"running"`
	Blocked   []int64 `json:"blocked"`
	Missing   []int64 `json:"missing"`
}

func (s *Server) handleBatchTasks(w http.ResponseWriter, r *http.Request) {
	var p batchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	var out batchResult
	switch p.Action {
	case "delete":
		for _, id := range p.TaskIDs {
			deleted, err := s.store.DeleteTask(id)
			if err != nil {
				writeError(w, s.logger.Warn, err)
				return
			}
			if deleted {
				out.Deleted = append(out.Deleted, id)
			} else {
				out.Missing = append(out.Missing, id)
			}
		}
	case "enable", "disable":
		target := p.Action == "enable"
		for _, id := range p.TaskIDs {
			task, err := s.store.GetTask(id)
			if err != nil {
				writeError(w, s.logger.Warn, err)
				return
			}
			if task == nil {
				out.Missing = append(out.Missing, id)
				continue
			}
			if task.IsActive == target {
				out.Unchanged = append(out.Unchanged, id)
				continue
			}
			if _, err := s.store.UpdateTask(s.validator, id, taskstore.RawPayload{IsActive: &target}); err != nil {
				writeError(w, s.logger.Warn, err)
				return
			}
			out.Updated = append(out.Updated, id)
		}
	case "run":
		for _, id := range p.TaskIDs {
			err := s.engine.RunManual(r.Context(), id)
			switch {
			case err == nil:
				out.Queued = append(out.Queued, id)
			case taskstoreIsNotFound(err):
				out.Missing = append(out.Missing, id)
			case taskstoreIsConflict(err):
				out.Running = append(out.Running, id)
			case taskstoreIsDependency(err):
				out.Blocked = append(out.Blocked, id)
			default:
				writeError(w, s.logger.Warn, err)
				return
			}
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown batch action"})
		return
	}

	writeJSON(w, http.StatusOK, out)
}
