package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersCreated counts accepted trade orders by side (BUY/SELL)
var OrdersCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerage_orders_created_total",
		Help: "Total number of trade orders accepted",
	},
	[]string{"side"},
)

// OrdersCanceled counts canceled trade orders
var OrdersCanceled = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "brokerage_orders_canceled_total",
		Help: "Total number of trade orders canceled",
	},
)

// TradesExecuted counts executed trades by asset code
var TradesExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerage_trades_executed_total",
		Help: "Total number of trades executed by the matching engine",
	},
	[]string{"asset_code"},
)

// MatchLatency records latency distribution for full matching passes
var MatchLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "brokerage_match_pass_latency_seconds",
		Help:    "Latency in seconds of one matchOrders pass",
		Buckets: prometheus.DefBuckets,
	},
)

// TransactionsProcessed counts ledger deposits and withdrawals by type and outcome
var TransactionsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brokerage_transactions_processed_total",
		Help: "Total number of deposit/withdrawal transactions by outcome",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(OrdersCreated, OrdersCanceled, TradesExecuted, MatchLatency, TransactionsProcessed)
}
