package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError renders err as §7's standard `{ "errors": [...] }` envelope
// with the status class its apperror.Kind maps to.
func writeError(w http.ResponseWriter, err error) {
	status, env := apperror.ToEnvelope(err)
	writeJSON(w, status, env)
}

func logHandlerError(r *http.Request, op string, err error) {
	zlog.Warn(r.Context()).Err(err).Str("handler", op).Msg("request failed")
}
