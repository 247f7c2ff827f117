package httpapi

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/accounts", s.handleAccounts)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("POST /api/tasks/batch", s.handleBatchTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/run", s.handleRunTask)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.handleToggleTask)
	mux.HandleFunc("GET /api/tasks/{id}/results", s.handleListResults)
	mux.HandleFunc("DELETE /api/tasks/{id}/results", s.handleDeleteResults)
	mux.HandleFunc("DELETE /api/tasks/{id}/results/{result_id}", s.handleDeleteResults)

	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("POST /api/templates", s.handleCreateTemplate)
	mux.HandleFunc("GET /api/templates/export", s.handleExportTemplates)
	mux.HandleFunc("POST /api/templates/import", s.handleImportTemplates)
	mux.HandleFunc("PUT /api/templates/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("GET /api/fs/list", s.withFSAuth(s.handleFSList))
	mux.HandleFunc("GET /api/fs/read", s.withFSAuth(s.handleFSRead))
	mux.HandleFunc("POST /api/fs/write", s.withFSAuth(s.handleFSWrite))
}
