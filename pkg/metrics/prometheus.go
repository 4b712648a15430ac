package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Ingestion metrics
	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Webhook deliveries by store outcome (created, duplicate)",
		},
		[]string{"outcome"},
	)

	enqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueue_total",
			Help: "Enqueue calls by outcome (enqueued, duplicate)",
		},
		[]string{"queue_name", "outcome"},
	)

	// Processing metrics
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_claims_total",
			Help: "Claim attempts by result (claimed, lost)",
		},
		[]string{"result"},
	)

	transactionsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_processed_total",
			Help: "Transactions moved to PROCESSED",
		},
	)

	processingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transaction_processing_duration_seconds",
			Help:    "Duration of the claim, execute and finalize sequence",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// Queue metrics
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_size",
			Help: "Current queue size",
		},
		[]string{"queue_name"},
	)

	taskResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_task_results_total",
			Help: "Task executions by result (succeeded, retried, failed)",
		},
		[]string{"queue_name", "result"},
	)

	transactionsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transactions_by_status",
			Help: "Stored transactions per lifecycle status",
		},
		[]string{"status"},
	)

	// Recovery metrics
	stuckRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_stuck_requeued_total",
			Help: "PROCESSING transactions with an expired claim that were requeued",
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events by publish status",
		},
		[]string{"event", "status"},
	)

	systemErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_errors_total",
			Help: "Total number of system errors",
		},
		[]string{"error_type", "component"},
	)
)

// HTTP Metrics
func RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration)
}

// Ingestion Metrics
func RecordWebhook(created bool) {
	outcome := "duplicate"
	if created {
		outcome = "created"
	}
	webhooksTotal.WithLabelValues(outcome).Inc()
}

func RecordEnqueue(queueName string, enqueued bool) {
	outcome := "duplicate"
	if enqueued {
		outcome = "enqueued"
	}
	enqueueTotal.WithLabelValues(queueName, outcome).Inc()
}

// Processing Metrics
func RecordClaim(claimed bool) {
	result := "lost"
	if claimed {
		result = "claimed"
	}
	claimsTotal.WithLabelValues(result).Inc()
}

func RecordProcessed(duration float64) {
	transactionsProcessed.Inc()
	processingDuration.Observe(duration)
}

func SetTransactionsByStatus(status string, count float64) {
	transactionsByStatus.WithLabelValues(status).Set(count)
}

// Database Metrics
func RecordDBQuery(operation, table string, duration float64) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// Queue Metrics
func SetQueueSize(queueName string, size float64) {
	queueSize.WithLabelValues(queueName).Set(size)
}

func RecordTaskResult(queueName, result string) {
	taskResultsTotal.WithLabelValues(queueName, result).Inc()
}

// Recovery Metrics
func RecordStuckRequeued(count int) {
	stuckRequeuedTotal.Add(float64(count))
}

func RecordEventPublished(event, status string) {
	eventsPublishedTotal.WithLabelValues(event, status).Inc()
}

// Application Metrics
func RecordSystemError(errorType, component string) {
	systemErrorsTotal.WithLabelValues(errorType, component).Inc()
}
