package httpapi

import "net/http"

// handleDownload implements GET /api/v1/crates/{name}/{version}/download
// (§4.9, §8 S3): an unconditional 302 to the CDN, yanked or not.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	version := r.PathValue("version")
	location := s.opts.Downloads.Resolve(r.Context(), name, version, s.now())
	http.Redirect(w, r, location, http.StatusFound)
}
