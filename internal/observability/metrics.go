package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckinOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "checkin_outcomes_total",
		Help:      "Total check-in attempts by outcome",
	}, []string{"outcome"})

	AttendanceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "attendance_transitions_total",
		Help:      "Total applied ledger transitions by kind",
	}, []string{"kind"})

	CorruptRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "corrupt_embedding_records_total",
		Help:      "Total identity rows skipped due to unusable embeddings",
	})

	PopulationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "population_size",
		Help:      "Number of enrolled identities in the last match pass",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "inference_duration_seconds",
		Help:      "Duration of recognition stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	InsertConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attend",
		Name:      "ledger_insert_conflicts_total",
		Help:      "Total attendance inserts retried as updates after a uniqueness conflict",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attend",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
