package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/jholhewres/opstaskd/internal/taskstore"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates()
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, newTemplateView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var p templatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	t, err := s.store.CreateTemplate(p.Key, p.Name, p.ScriptBody)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTemplateView(t))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid template id"})
		return
	}
	var p templatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	t, err := s.store.UpdateTemplate(id, p.Name, p.ScriptBody)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	if t == nil {
		writeError(w, s.logger.Warn, taskstore.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newTemplateView(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid template id"})
		return
	}
	deleted, err := s.store.DeleteTemplate(id)
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

func (s *Server) handleExportTemplates(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportTemplates()
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	var data map[string]taskstore.TemplateExport
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	inserted, updated, err := s.store.ImportTemplates(data)
	if err != nil {
		writeError(w, s.logger.Warn, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted, "updated": updated})
}
