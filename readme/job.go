package readme

import (
	"context"
	"encoding/json"

	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/internal/apperror"
)

type renderPayload struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Text    string `json:"text"`
	Path    string `json:"path"`
	BaseURL string `json:"base_url"`
	PkgPath string `json:"pkg_path"`
}

// Handler adapts Upload into a jobqueue.Handler for render_and_upload_readme
// (§4.5), the job publish.Pipeline enqueues whenever a tarball carries a
// README.
func Handler(blobs blobstore.Store) func(ctx context.Context, payload json.RawMessage) error {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p renderPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return apperror.Wrap(apperror.Internal, op+".Handler", "decoding payload", err)
		}
		return Upload(ctx, blobs, p.Name, p.Version, []byte(p.Text), p.BaseURL, p.PkgPath)
	}
}
