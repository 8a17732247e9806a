package httpapi

import (
	"net/http"

	"github.com/crates-registry/core/publish"
	"github.com/crates-registry/core/registry"
)

// handlePublish implements PUT /api/v1/crates/new (§4.7, §8 S1/S6): decode
// the length-prefixed metadata+tarball body, authenticate, and hand off to
// the publish pipeline for the rest of the 11-step sequence.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.checkReadOnly(w) || s.checkRateLimit(w) {
		return
	}

	au, isAdmin, err := s.authenticate(r, true)
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := publish.DecodeRequest(r.Body, s.opts.Publish.MetadataCeiling, s.opts.Publish.Limits.MaxUploadSize)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.opts.Publish.Publish(r.Context(), au, isAdmin, req.MetadataJSON, req.Tarball, s.now())
	if err != nil {
		logHandlerError(r, "publish", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"crate":    result.Crate,
		"version":  result.Version,
		"warnings": result.Warnings,
		"purl":     registry.Purl(result.Crate.Name, result.Version.Num),
	})
}
