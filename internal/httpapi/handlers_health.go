package httpapi

import (
	"net/http"
	"time"

	"github.com/jholhewres/opstaskd/internal/taskstore"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"time":       time.Now().Format(taskstore.TimeLayout),
		"task_count": len(tasks),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	names, err := s.accounts.ListAllowedAccounts()
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	defaultAccount, _ := s.accounts.EnsureAllowed("")
	writeJSON(w, http.StatusOK, map[string]any{
		"data": names,
		"meta": map[string]any{
			"posix_supported": s.accounts.Supported(),
			"default_account": defaultAccount,
		},
	})
}
