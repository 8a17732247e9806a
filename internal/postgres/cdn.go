package postgres

import (
	"context"

	"github.com/crates-registry/core/cdn"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

var _ cdn.Queue = (*CDNQueue)(nil)

// CDNQueue implements cdn.Queue over cloudfront_invalidation_queue, the
// durable counterpart to cdn.MemoryQueue used outside of tests.
type CDNQueue struct{ *Store }

// QueuePaths buffers paths for a later Flush.
func (q CDNQueue) QueuePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	sq := newQuery("cdn_queue_paths")
	var err error
	done := sq.start(&err)
	defer done()

	if _, err = q.pool.Exec(ctx, sq.SQL, paths); err != nil {
		return apperror.Wrap(apperror.Internal, op+".CDNQueue.QueuePaths", "queuing invalidation paths", err)
	}
	return nil
}

// FetchBatch returns up to limit queued entries, oldest first.
func (q CDNQueue) FetchBatch(ctx context.Context, limit int) ([]registry.CloudFrontInvalidationQueueEntry, error) {
	sq := newQuery("cdn_fetch_batch")
	var err error
	done := sq.start(&err)
	defer done()

	rows, queryErr := q.pool.Query(ctx, sq.SQL, limit)
	if queryErr != nil {
		err = queryErr
		return nil, apperror.Wrap(apperror.Internal, op+".CDNQueue.FetchBatch", "selecting queued paths", err)
	}
	defer rows.Close()

	var out []registry.CloudFrontInvalidationQueueEntry
	for rows.Next() {
		var e registry.CloudFrontInvalidationQueueEntry
		if err = rows.Scan(&e.ID, &e.Path, &e.CreatedAt); err != nil {
			return nil, apperror.Wrap(apperror.Internal, op+".CDNQueue.FetchBatch", "scanning queued path", err)
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".CDNQueue.FetchBatch", "iterating queued paths", err)
	}
	return out, nil
}

// RemoveItems deletes the given entries once their flush has succeeded.
func (q CDNQueue) RemoveItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	sq := newQuery("cdn_remove_items")
	var err error
	done := sq.start(&err)
	defer done()

	if _, err = q.pool.Exec(ctx, sq.SQL, ids); err != nil {
		return apperror.Wrap(apperror.Internal, op+".CDNQueue.RemoveItems", "removing flushed paths", err)
	}
	return nil
}
