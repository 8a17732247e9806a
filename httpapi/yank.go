package httpapi

import "net/http"

// handleYank implements DELETE /api/v1/crates/{name}/{version}/yank
// (§4.8, §8 S3).
func (s *Server) handleYank(w http.ResponseWriter, r *http.Request) {
	if s.checkReadOnly(w) {
		return
	}
	au, isAdmin, err := s.authenticate(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	name, version := r.PathValue("name"), r.PathValue("version")
	if err := s.opts.Lifecycle.Yank(r.Context(), au, isAdmin, name, version, s.now()); err != nil {
		logHandlerError(r, "yank", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleUnyank implements PUT /api/v1/crates/{name}/{version}/unyank
// (§4.8, §8 S3).
func (s *Server) handleUnyank(w http.ResponseWriter, r *http.Request) {
	if s.checkReadOnly(w) {
		return
	}
	au, isAdmin, err := s.authenticate(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	name, version := r.PathValue("name"), r.PathValue("version")
	if err := s.opts.Lifecycle.Unyank(r.Context(), au, isAdmin, name, version, s.now()); err != nil {
		logHandlerError(r, "unyank", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleDeleteVersion implements DELETE /api/v1/crates/{name}/{version}
// (§4.8): the narrow within-24-hours hard delete.
func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	if s.checkReadOnly(w) {
		return
	}
	au, isAdmin, err := s.authenticate(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	name, version := r.PathValue("name"), r.PathValue("version")
	if err := s.opts.Lifecycle.DeleteVersion(r.Context(), au, isAdmin, name, version, s.now()); err != nil {
		logHandlerError(r, "delete_version", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
