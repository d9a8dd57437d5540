// Package metrics exposes the exchange's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	OrdersPlaced     *prometheus.CounterVec
	OrdersCancelled  prometheus.Counter
	TradesExecuted   prometheus.Counter
	TradeVolume      prometheus.Counter
	MarketsResolved  prometheus.Counter
	SettlementFees   prometheus.Counter
	DepositsCredited prometheus.Counter
	DepositVolume    prometheus.Counter
	Withdrawals      *prometheus.CounterVec
	IndexerErrors    prometheus.Counter

	HTTPDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		OrdersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_placed_total",
			Help: "Orders accepted, by side.",
		}, []string{"side"}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_orders_cancelled_total",
			Help: "Orders cancelled by their owner.",
		}),
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_trades_executed_total",
			Help: "Trades created by the matching engine.",
		}),
		TradeVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_trade_volume_kopecks_total",
			Help: "Matched volume in kopecks.",
		}),
		MarketsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_markets_resolved_total",
			Help: "Markets settled by an operator.",
		}),
		SettlementFees: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_settlement_fees_kopecks_total",
			Help: "Platform fees collected at settlement, in kopecks.",
		}),
		DepositsCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_deposits_credited_total",
			Help: "Chain deposits credited to the ledger.",
		}),
		DepositVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_deposit_volume_kopecks_total",
			Help: "Credited deposit volume in kopecks.",
		}),
		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_withdrawals_total",
			Help: "Withdrawal requests by terminal status transition.",
		}, []string{"status"}),
		IndexerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_indexer_errors_total",
			Help: "Deposit indexer iteration failures.",
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request's latency.
func (c *Collector) ObserveHTTP(route, status string, elapsed time.Duration) {
	c.HTTPDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}
