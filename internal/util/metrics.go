package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_created_total",
		Help: "Total number of marketplace orders created",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_orders_rejected_total",
		Help: "Total number of order requests rejected",
	}, []string{"reason"})

	OrderLinesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_order_lines_skipped_total",
		Help: "Order lines dropped because the product does not exist",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_order_status_transitions_total",
		Help: "Order status changes applied",
	}, []string{"to"})

	CommissionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_commissions_recorded_total",
		Help: "Total number of commission entries recorded",
	})

	CommissionAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_commission_amount_total",
		Help: "Sum of recorded commission amounts",
	})

	CommissionLinesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_commission_lines_skipped_total",
		Help: "Completed order lines without a resolvable seller",
	})

	CommissionStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_commission_status_updates_total",
		Help: "Commission entries moved to a new status",
	}, []string{"status"})

	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_products_created_total",
		Help: "Total number of seller products created",
	})

	ProductsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_products_deleted_total",
		Help: "Total number of seller products deleted",
	})

	StatsComputeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_stats_compute_seconds",
		Help:    "Latency of stats aggregation",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
