// Package postgres is the relational store (spec §2's relational model):
// one file per aggregate, embedded SQL, and promauto query metrics,
// following the teacher's datastore/postgres conventions.
package postgres

import (
	"context"
	"embed"
	"errors"
	"path"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const op = "postgres"

//go:embed queries/*.sql
var queryFiles embed.FS

var (
	queryLabels = []string{"query", "success"}
	queryTimer  = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "registry",
		Subsystem: "postgres",
		Name:      "query_duration_seconds",
		Help:      "Relational store query duration.",
	}, queryLabels)
	queryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Subsystem: "postgres",
		Name:      "query_total",
		Help:      "Relational store query count.",
	}, queryLabels)
)

type query struct {
	SQL string

	labels prometheus.Labels
	timer  *prometheus.Timer
}

func newQuery(name string) query {
	b, err := queryFiles.ReadFile(path.Join("queries", name+".sql"))
	if err != nil {
		panic(err)
	}
	return query{SQL: string(b), labels: prometheus.Labels{"query": name}}
}

// dynamicQuery wraps caller-built SQL (search.BuildQuery's goqu output)
// for metrics purposes, skipping the embedded-file lookup newQuery does
// for static statements.
func dynamicQuery(name, sql string) query {
	return query{SQL: sql, labels: prometheus.Labels{"query": name}}
}

func (q *query) start(err *error) func() {
	q.timer = prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		queryTimer.With(q.labels).Observe(v)
	}))
	return func() {
		q.labels["success"] = strconv.FormatBool(errors.Is(*err, nil))
		queryCounter.With(q.labels).Inc()
		q.timer.ObserveDuration()
	}
}

// Store is the relational store's top-level handle.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pool for callers that need it directly,
// e.g. jobqueue.NewRunner and the trusted-publishing JTI cleanup jobs.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
