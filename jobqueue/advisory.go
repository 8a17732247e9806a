package jobqueue

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

// withAdvisoryLock runs fn only if the session-level advisory lock for key
// can be obtained on conn, releasing it afterward regardless of fn's
// outcome. Returns (false, nil) without calling fn if the lock is already
// held elsewhere.
func withAdvisoryLock(ctx context.Context, conn *pgx.Conn, key int64, fn func() error) (bool, error) {
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		return false, apperror.Wrap(apperror.Internal, "jobqueue.withAdvisoryLock", "acquiring advisory lock", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		var released bool
		if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released); err != nil {
			zlog.Warn(ctx).Err(err).Int64("key", key).Msg("failed to release advisory lock")
			return
		}
		if !released {
			zlog.Warn(ctx).Int64("key", key).Msg("advisory lock was not held at unlock time")
		}
	}()
	return true, fn()
}
