package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jholhewres/opstaskd/internal/account"
	"github.com/jholhewres/opstaskd/internal/taskstore"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the Task Store / Payload Validator / Account
// Directory error taxonomy (spec.md §7) onto HTTP status codes.
func writeError(w http.ResponseWriter, logWarn func(string, ...any), err error) {
	var ve *taskstore.ValidationError
	var ave *account.ValidationError
	var nc *taskstore.NameConflictError
	var conflict *taskstore.ConflictError
	var dep *taskstore.DependencyError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.As(err, &ave):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ave.Error()})
	case errors.As(err, &nc):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: nc.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Error()})
	case errors.As(err, &dep):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: dep.Error()})
	case errors.Is(err, taskstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		logWarn("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func taskstoreIsNotFound(err error) bool {
	return errors.Is(err, taskstore.ErrNotFound)
}

func taskstoreIsConflict(err error) bool {
	var c *taskstore.ConflictError
	return errors.As(err, &c)
}

func taskstoreIsDependency(err error) bool {
	var d *taskstore.DependencyError
	return errors.As(err, &d)
}
