package typosquat

import (
	"context"
	"encoding/json"

	"github.com/crates-registry/core/internal/apperror"
)

const op = "typosquat"

type checkPayload struct {
	Name string `json:"name"`
}

// Handler adapts Checker into a jobqueue.Handler for the check_typosquat
// job type §4.7 enqueues after every new-crate publish.
func (c *Checker) Handler(ctx context.Context, payload json.RawMessage) error {
	var p checkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return apperror.Wrap(apperror.Internal, op+".Handler", "decoding payload", err)
	}
	c.Check(ctx, p.Name)
	return nil
}
