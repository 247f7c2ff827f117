package httpapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"unicode/utf8"
)

type fsEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func fsPath(r *http.Request) string {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "."
	}
	return filepath.Clean(p)
}

func (s *Server) handleFSList(w http.ResponseWriter, r *http.Request) {
	path := fsPath(r)
	entries, err := os.ReadDir(path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	out := make([]fsEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, fsEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "entries": out})
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	path := fsPath(r)
	data, err := os.ReadFile(path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if !utf8.Valid(data) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "file is not valid UTF-8"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "content": string(data)})
}

func (s *Server) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	path := fsPath(r)
	defer r.Body.Close()
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if !utf8.Valid(content) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "content is not valid UTF-8"})
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "written": len(content)})
}
