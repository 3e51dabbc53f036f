package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	segmentQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmadesk_segment_queries_total",
			Help: "Total number of segment queries by outcome.",
		},
		[]string{"outcome"},
	)
	segmentQueryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmadesk_segment_query_latency_ms",
			Help:    "End-to-end segment query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	segmentResultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmadesk_segment_result_rows",
			Help:    "Number of rows returned per segment query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
	segmentClarificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmadesk_segment_clarifications_total",
			Help: "Total number of segment queries answered with a clarification prompt.",
		},
	)
	segmentRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmadesk_segment_retries_total",
			Help: "Total number of segment query execution retries.",
		},
	)
	segmentTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmadesk_segment_timeouts_total",
			Help: "Total number of segment query executions that hit the deadline.",
		},
	)
	archiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmadesk_archive_runs_total",
			Help: "Total number of audit archive runs by outcome.",
		},
		[]string{"outcome"},
	)
	archiveRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pharmadesk_archive_rows_total",
			Help: "Total number of audit rows written to archive objects.",
		},
	)
	archiveRunDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pharmadesk_archive_run_duration_ms",
			Help:    "Audit archive run duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)
	pendingAuditRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmadesk_audit_pending_rows",
			Help: "Current count of audit rows past retention and not yet archived.",
		},
	)
	clientsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmadesk_clients_total",
			Help: "Current number of registered clients.",
		},
	)
	openOrdersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmadesk_open_orders",
			Help: "Current number of orders not yet delivered or cancelled.",
		},
	)
	lowStockDrugs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pharmadesk_low_stock_drugs",
			Help: "Current number of drugs at or below their reorder point.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		segmentQueriesTotal,
		segmentQueryLatencyMs,
		segmentResultRows,
		segmentClarificationsTotal,
		segmentRetriesTotal,
		segmentTimeoutsTotal,
		archiveRunsTotal,
		archiveRowsTotal,
		archiveRunDurationMs,
		pendingAuditRows,
		clientsTotal,
		openOrdersTotal,
		lowStockDrugs,
	)
}

func ObserveSegmentQuery(outcome string, rows int, elapsed time.Duration) {
	segmentQueriesTotal.WithLabelValues(outcome).Inc()
	segmentQueryLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if rows >= 0 {
		segmentResultRows.Observe(float64(rows))
	}
}

func IncrementSegmentClarification() {
	segmentClarificationsTotal.Inc()
}

func IncrementSegmentRetry() {
	segmentRetriesTotal.Inc()
}

func IncrementSegmentTimeout() {
	segmentTimeoutsTotal.Inc()
}

func ObserveArchiveRun(outcome string, rows int64, elapsed time.Duration) {
	archiveRunsTotal.WithLabelValues(outcome).Inc()
	if rows > 0 {
		archiveRowsTotal.Add(float64(rows))
	}
	archiveRunDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func SetPendingAuditRows(pending int64) {
	if pending < 0 {
		pending = 0
	}
	pendingAuditRows.Set(float64(pending))
}

func SetDashboardStats(clients, openOrders, lowStock int64) {
	clientsTotal.Set(float64(clients))
	openOrdersTotal.Set(float64(openOrders))
	lowStockDrugs.Set(float64(lowStock))
}
