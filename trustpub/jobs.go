package trustpub

import (
	"context"
	"encoding/json"
)

// Expirer deletes rows that have passed their expiry, backing the two
// trustpub::delete_expired_* job types (§4.5).
type Expirer interface {
	DeleteExpiredTokens(ctx context.Context) error
	DeleteExpiredJTIs(ctx context.Context) error
}

// DeleteExpiredTokensHandler adapts Expirer into a jobqueue.Handler for
// trustpub::delete_expired_tokens.
func DeleteExpiredTokensHandler(e Expirer) func(ctx context.Context, payload json.RawMessage) error {
	return func(ctx context.Context, _ json.RawMessage) error {
		return e.DeleteExpiredTokens(ctx)
	}
}

// DeleteExpiredJTIsHandler adapts Expirer into a jobqueue.Handler for
// trustpub::delete_expired_jtis.
func DeleteExpiredJTIsHandler(e Expirer) func(ctx context.Context, payload json.RawMessage) error {
	return func(ctx context.Context, _ json.RawMessage) error {
		return e.DeleteExpiredJTIs(ctx)
	}
}
