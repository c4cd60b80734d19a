// Package telemetry holds the Prometheus metrics exposed on GET /metrics.
//
// HTTP metrics are labelled by the gin route template (c.FullPath()), never the raw URL, so user
// supplied path segments such as request ids do not create new series.
package telemetry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// ApprovalTransitionsTotal counts profile update requests by the transition they went through:
// submitted, approved or rejected.
var ApprovalTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "approval_transitions_total",
		Help: "Total number of profile update request transitions, by action.",
	},
	[]string{"action"},
)

// Notification pipeline metrics.
var (
	OutboxDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_outbox_dispatched_total",
			Help: "Total number of outbox rows handed to the email queue.",
		},
	)

	EmailDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_deliveries_total",
			Help: "Total number of email delivery attempts, by template and status (sent, failed, dead_lettered).",
		},
		[]string{"template", "status"},
	)
)

// DBOpenConnections tracks connections held by the pgx pool. Sampled by StartPoolStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartPoolStatsCollector samples pool statistics every interval until ctx is done.
func StartPoolStatsCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("pool stats collector stopped")
				return
			case <-ticker.C:
				DBOpenConnections.Set(float64(pool.Stat().TotalConns()))
			}
		}
	}()
}

// RealtimeConnections is the number of WebSocket clients connected to this instance.
var RealtimeConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Current number of WebSocket connections on this instance.",
	},
)
