package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/lifecycle"
	"github.com/crates-registry/core/publish"
)

// tx wraps a pgx.Tx and implements publish.Tx, lifecycle.Tx, and the
// narrow interfaces auth/downloads/search consume, the same "one
// concrete type, many small consumer-owned interfaces" shape the
// teacher's indexer.Store satisfies across indexer/libindex/libscan.
// pgx.Tx's own Exec method already satisfies jobqueue.Execer, so tx needs
// no plumbing of its own for that.
type tx struct {
	pgx.Tx
}

// withTx runs fn inside one transaction, committing on success and
// rolling back on any error or panic.
func (s *Store) withTx(ctx context.Context, fn func(*tx) error) (err error) {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op+".withTx", "beginning transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgtx.Rollback(ctx)
			panic(p)
		}
	}()

	t := &tx{Tx: pgtx}
	if err = fn(t); err != nil {
		_ = pgtx.Rollback(ctx)
		return err
	}
	if err = pgtx.Commit(ctx); err != nil {
		return apperror.Wrap(apperror.Internal, op+".withTx", "committing transaction", err)
	}
	return nil
}

// PublishStore adapts Store to publish.Store. It exists because Go
// resolves interface satisfaction by exact method signature, and
// publish.Tx and lifecycle.Tx are distinct named interfaces even though
// a single *tx value satisfies both: one WithTx method on Store can't be
// typed for both callers at once, so each consumer gets its own thin
// wrapper around the shared withTx engine.
type PublishStore struct{ *Store }

// WithTx satisfies publish.Store.
func (s PublishStore) WithTx(ctx context.Context, fn func(publish.Tx) error) error {
	return s.Store.withTx(ctx, func(t *tx) error { return fn(t) })
}

// LifecycleStore adapts Store to lifecycle.Store, for the same reason
// PublishStore does.
type LifecycleStore struct{ *Store }

// WithTx satisfies lifecycle.Store.
func (s LifecycleStore) WithTx(ctx context.Context, fn func(lifecycle.Tx) error) error {
	return s.Store.withTx(ctx, func(t *tx) error { return fn(t) })
}
