package sqlite

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
)

const (
	opInsertUpdate = "insert_update"
	opDelete       = "delete"
	opSelect       = "select"
)

var (
	metricQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pexec",
			Subsystem: "sqlite",
			Name:      "queries_total",
			Help:      "total number of queries by operation",
		},
		[]string{"op"},
	)
	metricQuerySecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pexec",
			Subsystem: "sqlite",
			Name:      "query_seconds_total",
			Help:      "total number of seconds spent on queries by operation",
		},
		[]string{"op"},
	)
)

func init() {
	pkgmetrics.MustRegister(
		metricQueriesTotal,
		metricQuerySecondsTotal,
	)
}

func RecordInsertUpdate(tookSeconds float64) {
	record(opInsertUpdate, tookSeconds)
}

func RecordDelete(tookSeconds float64) {
	record(opDelete, tookSeconds)
}

func RecordSelect(tookSeconds float64) {
	record(opSelect, tookSeconds)
}

func record(op string, tookSeconds float64) {
	metricQueriesTotal.WithLabelValues(op).Inc()
	metricQuerySecondsTotal.WithLabelValues(op).Add(tookSeconds)
}

// OpStats is the cumulative count and latency of one kind of query.
type OpStats struct {
	Total      int64
	SecondsAvg float64
}

type Metrics struct {
	Time time.Time

	InsertUpdate OpStats
	Delete       OpStats
	Select       OpStats
}

func (m Metrics) IsZero() bool {
	return m.InsertUpdate == OpStats{} && m.Delete == OpStats{} && m.Select == OpStats{}
}

// ReadMetrics reads the query metrics from the gatherer.
func ReadMetrics(gatherer prometheus.Gatherer) (Metrics, error) {
	mfs, err := gatherer.Gather()
	if err != nil {
		return Metrics{}, err
	}

	totals := make(map[string]float64)
	seconds := make(map[string]float64)
	for _, mf := range mfs {
		var dst map[string]float64
		switch mf.GetName() {
		case "pexec_sqlite_queries_total":
			dst = totals
		case "pexec_sqlite_query_seconds_total":
			dst = seconds
		default:
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "op" {
					dst[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}

	stats := func(op string) OpStats {
		s := OpStats{Total: int64(totals[op])}
		if s.Total > 0 {
			s.SecondsAvg = seconds[op] / float64(s.Total)
		}
		return s
	}
	return Metrics{
		Time:         time.Now().UTC(),
		InsertUpdate: stats(opInsertUpdate),
		Delete:       stats(opDelete),
		Select:       stats(opSelect),
	}, nil
}
