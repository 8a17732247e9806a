// Package jobqueue implements the Job Queue & Runner (spec §4.5): a single
// Postgres table holding pending jobs, a SKIP LOCKED selection query that
// gives at-least-once delivery, retry with exponential backoff, and
// advisory locks guarding singleton job types across worker processes.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quay/zlog"

	"github.com/crates-registry/core/internal/apperror"
)

const op = "jobqueue"

// Job is one row fetched off the queue.
type Job struct {
	ID       int64
	Type     string
	Payload  json.RawMessage
	Priority int
	Retries  int
	Queue    string
}

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx, so Enqueue can run
// either standalone (the publish pipeline enqueues through its Jobs pool
// after commit) or inside a transaction (lifecycle enqueues on its Tx).
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Enqueue inserts a new job. Deduped job types (per IsDeduped) use
// ON CONFLICT DO NOTHING keyed on (job_type, payload) so repeated
// publishes of the same crate coalesce into one pending sync.
func Enqueue(ctx context.Context, db Execer, jobType string, payload any, queueName string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperror.Wrap(apperror.Internal, op+".Enqueue", "marshaling payload", err)
	}

	name := "enqueue_always"
	if IsDeduped(jobType) {
		name = "enqueue"
	}
	q := newQuery(name)
	var execErr error
	done := q.start(&execErr)
	_, execErr = db.Exec(ctx, q.SQL, jobType, body, Priority(jobType), queueName)
	done()
	if execErr != nil {
		return apperror.Wrap(apperror.Internal, op+".Enqueue", "inserting job", execErr)
	}
	return nil
}

// Runner polls the queue and dispatches jobs to registered handlers.
type Runner struct {
	pool         *pgxpool.Pool
	registry     *Registry
	pollInterval time.Duration
}

// NewRunner builds a Runner pulling connections from pool and dispatching
// to handlers registered on registry.
func NewRunner(pool *pgxpool.Pool, registry *Registry, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runner{pool: pool, registry: registry, pollInterval: pollInterval}
}

// Run polls forever until ctx is canceled, processing one job at a time.
// After a successful Tick it loops immediately to drain the queue instead
// of waiting out a full idle interval.
func (r *Runner) Run(ctx context.Context) error {
	for {
		ran, err := r.Tick(ctx)
		if err != nil {
			zlog.Error(ctx).Err(err).Msg("job queue tick failed")
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// Tick fetches and runs at most one job, reporting whether one was found.
func (r *Runner) Tick(ctx context.Context) (bool, error) {
	types := r.registry.Types()
	if len(types) == 0 {
		return false, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, apperror.Wrap(apperror.Internal, op+".Tick", "acquiring connection", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, apperror.Wrap(apperror.Internal, op+".Tick", "beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	q := newQuery("select_next")
	var selErr error
	done := q.start(&selErr)
	row := tx.QueryRow(ctx, q.SQL, types)
	var job Job
	selErr = row.Scan(&job.ID, &job.Type, &job.Payload, &job.Priority, &job.Retries, &job.Queue)
	done()

	switch {
	case selErr == pgx.ErrNoRows:
		return false, nil
	case selErr != nil:
		return false, apperror.Wrap(apperror.Internal, op+".Tick", "selecting next job", selErr)
	}

	if IsSingleton(job.Type) {
		key := AdvisoryLockKey(job.Type)
		acquired, lockErr := withAdvisoryLock(ctx, conn.Conn(), key, func() error {
			return r.dispatch(ctx, tx, job)
		})
		if lockErr != nil {
			return false, lockErr
		}
		if !acquired {
			zlog.Debug(ctx).Str("job_type", job.Type).Msg("singleton job already running elsewhere, skipping")
			return false, tx.Commit(ctx)
		}
	} else if err := r.dispatch(ctx, tx, job); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func (r *Runner) dispatch(ctx context.Context, tx pgx.Tx, job Job) error {
	handler, ok := r.registry.Lookup(job.Type)
	if !ok {
		return apperror.New(apperror.Internal, op+".dispatch", fmt.Sprintf("no handler registered for job type %q", job.Type))
	}

	jctx := zlog.ContextWithValues(ctx, "component", "jobqueue.Runner.dispatch", "job_type", job.Type, "job_id", fmt.Sprint(job.ID))

	runErr := runHandler(jctx, handler, job.Payload)
	if runErr == nil {
		jobsRun.WithLabelValues(job.Type, "success").Inc()
		q := newQuery("delete")
		var delErr error
		done := q.start(&delErr)
		_, delErr = tx.Exec(ctx, q.SQL, job.ID)
		done()
		if delErr != nil {
			return apperror.Wrap(apperror.Internal, op+".dispatch", "deleting completed job", delErr)
		}
		return nil
	}

	jobsRun.WithLabelValues(job.Type, "failure").Inc()
	zlog.Warn(jctx).Err(runErr).Msg("job failed, scheduling retry")
	q := newQuery("retry")
	var retryErr error
	done := q.start(&retryErr)
	_, retryErr = tx.Exec(ctx, q.SQL, job.ID, runErr.Error())
	done()
	if retryErr != nil {
		return apperror.Wrap(apperror.Internal, op+".dispatch", "recording job failure", retryErr)
	}
	return nil
}

// runHandler calls handler, converting a panic into an error so one bad
// job can't take down the runner, matching §4.5's "failure or panic"
// lifecycle step.
func runHandler(ctx context.Context, handler Handler, payload json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperror.New(apperror.Internal, op+".runHandler", fmt.Sprintf("handler panicked: %v", p))
		}
	}()
	return handler(ctx, payload)
}
