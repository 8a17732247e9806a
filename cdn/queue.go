package cdn

import (
	"context"
	"sync"

	"github.com/crates-registry/core/registry"
)

// Queue is the durable CloudFront invalidation queue (§4.4): paths are
// buffered here between batched flushes, read oldest-first, and removed
// once a flush succeeds. A Postgres-backed implementation lives in
// internal/postgres; Memory below backs tests.
type Queue interface {
	QueuePaths(ctx context.Context, paths []string) error
	FetchBatch(ctx context.Context, limit int) ([]registry.CloudFrontInvalidationQueueEntry, error)
	RemoveItems(ctx context.Context, ids []int64) error
}

// MemoryQueue is an in-process Queue used by tests.
type MemoryQueue struct {
	mu      sync.Mutex
	nextID  int64
	entries []registry.CloudFrontInvalidationQueueEntry
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) QueuePaths(_ context.Context, paths []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range paths {
		q.nextID++
		q.entries = append(q.entries, registry.CloudFrontInvalidationQueueEntry{ID: q.nextID, Path: p})
	}
	return nil
}

func (q *MemoryQueue) FetchBatch(_ context.Context, limit int) ([]registry.CloudFrontInvalidationQueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > len(q.entries) {
		limit = len(q.entries)
	}
	out := make([]registry.CloudFrontInvalidationQueueEntry, limit)
	copy(out, q.entries[:limit])
	return out, nil
}

func (q *MemoryQueue) RemoveItems(_ context.Context, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	remove := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}
	kept := q.entries[:0:0]
	for _, e := range q.entries {
		if _, ok := remove[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return nil
}

// Flush drains up to batchSize paths from q and submits them to inv,
// deleting them from the queue only on success, matching §4.4's
// fetch_batch/submit/delete flush cycle.
func Flush(ctx context.Context, q Queue, inv *Invalidator, batchSize int) (int, error) {
	batch, err := q.FetchBatch(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	paths := make([]string, len(batch))
	ids := make([]int64, len(batch))
	for i, e := range batch {
		paths[i] = e.Path
		ids[i] = e.ID
	}
	if err := inv.Submit(ctx, paths); err != nil {
		return 0, err
	}
	if err := q.RemoveItems(ctx, ids); err != nil {
		return 0, err
	}
	return len(batch), nil
}
