package httpapi

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// withFSAuth guards next with HTTP basic auth against FSAuthHash when
// configured. With no hash configured, the filesystem endpoints are
// open, matching the rest of the control plane.
func (s *Server) withFSAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.FSAuthHash == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.cfg.FSAuthHash), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="fs"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}
