package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/crates-registry/core/internal/apperror"
)

type trustPubExchangeRequest struct {
	IDToken string `json:"jwt"`
}

// handleTrustPubExchange implements POST /api/v1/trusted_publishing/tokens
// (§4.11): exchange a CI-provided OIDC id token for a short-lived publish
// token scoped to the repository's configured crate.
func (s *Server) handleTrustPubExchange(w http.ResponseWriter, r *http.Request) {
	if s.checkReadOnly(w) {
		return
	}

	var req trustPubExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Wrap(apperror.Validation, "httpapi.handleTrustPubExchange", "malformed request body", err))
		return
	}
	if req.IDToken == "" {
		writeError(w, apperror.New(apperror.Validation, "httpapi.handleTrustPubExchange", "jwt is required"))
		return
	}

	plaintext, expiresAt, err := s.opts.TrustPub.Exchange(r.Context(), req.IDToken, s.now())
	if err != nil {
		logHandlerError(r, "trustpub_exchange", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      plaintext,
		"expires_at": expiresAt,
	})
}
