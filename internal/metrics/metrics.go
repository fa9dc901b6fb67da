// Package metrics centralizes the engine's prometheus collectors so
// every component registers through one place instead of scattering
// lazy_static-style globals across packages.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// InterestRateFetches counts calls to an InterestRateProvider, labeled
	// by exchange and asset.
	InterestRateFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interest_rate_fetches_total",
		Help: "Count of interest rate lookups by exchange and asset.",
	}, []string{"exchange", "asset"})

	// StrategySignals counts signals emitted per strategy key.
	StrategySignals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strategy_signals_total",
		Help: "Count of trade signals emitted per strategy.",
	}, []string{"strategy"})

	// PortfolioValue reports the current mark-to-market value of a
	// strategy's portfolio.
	PortfolioValue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_value",
		Help: "Current mark-to-market portfolio value.",
	}, []string{"strategy"})

	// PortfolioPnL reports the current total (realized + unrealized) PnL.
	PortfolioPnL = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_pnl",
		Help: "Current total profit and loss.",
	}, []string{"strategy"})

	// WALCompactions counts compaction passes over the order write-ahead
	// log, labeled by exchange.
	WALCompactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_wal_compactions_total",
		Help: "Count of write-ahead log compaction passes.",
	}, []string{"exchange"})

	// OrderRejections counts terminal order rejections by exchange and
	// rejection kind.
	OrderRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_rejections_total",
		Help: "Count of order rejections by kind.",
	}, []string{"exchange", "kind"})
)

func init() {
	prometheus.MustRegister(
		InterestRateFetches,
		StrategySignals,
		PortfolioValue,
		PortfolioPnL,
		WALCompactions,
		OrderRejections,
	)
}
