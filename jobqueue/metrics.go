package jobqueue

import (
	"embed"
	"errors"
	"path"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//go:embed queries/*.sql
var queryFiles embed.FS

var (
	queryLabels = []string{"query", "success"}
	queryTimer  = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "registry",
		Subsystem: "jobqueue",
		Name:      "query_duration_seconds",
		Help:      "Job queue database query duration.",
	}, queryLabels)
	queryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Subsystem: "jobqueue",
		Name:      "query_total",
		Help:      "Job queue database query count.",
	}, queryLabels)

	jobsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Subsystem: "jobqueue",
		Name:      "jobs_total",
		Help:      "Jobs processed by the runner, by job type and outcome.",
	}, []string{"job_type", "outcome"})
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
