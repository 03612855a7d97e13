package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed tracks blocks that went through a processing pass
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
		[]string{"outcome"},
	)

	// BlockFailures tracks abandoned blocks by failure type
	BlockFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_block_failures_total",
			Help: "Total number of blocks whose processing was abandoned",
		},
		[]string{"failure_type"},
	)

	// LatestBlock tracks the highest block number seen
	LatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_latest_block",
			Help: "Highest block number delivered by the subscription",
		},
	)

	// EventsExtracted tracks event records extracted from blocks
	EventsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_events_total",
			Help: "Total number of event records extracted",
		},
		[]string{"qualified"},
	)

	// DecodeErrors tracks subscription payloads that could not be decoded
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_decode_errors_total",
			Help: "Total number of undecodable block payloads",
		},
		[]string{"source"},
	)

	// Invocations tracks completed invocations by status
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_invocations_total",
			Help: "Total number of completed chaincode invocations",
		},
		[]string{"status"},
	)

	// InvocationErrors tracks failed invocations by error class
	InvocationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_invocation_errors_total",
			Help: "Total number of failed chaincode invocations",
		},
		[]string{"error_type"},
	)

	// InvocationLatency tracks invocation latency
	InvocationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_invocation_latency_seconds",
			Help:    "Chaincode invocation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// InvocationsInFlight tracks invocations not yet completed
	InvocationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_invocations_in_flight",
			Help: "Number of chaincode invocations currently in flight",
		},
	)

	// DBConnectionPoolUsage tracks database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_db_connection_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)
)
