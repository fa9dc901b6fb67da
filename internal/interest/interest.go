// Package interest provides margin interest rate lookups used by the
// portfolio to accrue interest on open margin positions.
package interest

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Period is the compounding period an InterestRate applies to.
type Period int

const (
	PeriodHourly Period = iota
	PeriodDaily
)

// Rate is a single interest-rate quote for an asset.
type Rate struct {
	Asset  string
	At     time.Time
	Rate   decimal.Decimal
	Period Period
}

var getRateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "get_interest_rate_total",
	Help: "Count of interest rate lookups issued to a provider.",
}, []string{"exchange", "asset"})

func init() {
	prometheus.MustRegister(getRateCounter)
}

// Provider supplies interest rates for margin positions and derives the
// accumulated fee owed on an open order since it was opened.
type Provider interface {
	GetInterestRate(ctx context.Context, exchange types.Exchange, asset string) (Rate, error)
	InterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error)
	QuoteInterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error)
}

// baseInterestFees applies the default interest_fees_since policy shared
// by every Provider implementation: zero unless the order is a margin
// order with a recorded borrowed amount.
func baseInterestFees(ctx context.Context, p Provider, exchange types.Exchange, order types.OrderDetail, quote bool) (decimal.Decimal, error) {
	if !order.AssetType.IsMargin() || order.BorrowedAmount == nil {
		return decimal.Zero, nil
	}
	rate, err := p.GetInterestRate(ctx, exchange, order.BaseAsset)
	if err != nil {
		return decimal.Zero, err
	}
	if quote {
		return totalQuoteInterest(order, rate), nil
	}
	return totalInterest(order, rate), nil
}

func elapsedPeriods(order types.OrderDetail, rate Rate) decimal.Decimal {
	if order.OpenAt == nil {
		return decimal.Zero
	}
	elapsed := time.Since(*order.OpenAt)
	var periodDur time.Duration
	switch rate.Period {
	case PeriodHourly:
		periodDur = time.Hour
	default:
		periodDur = 24 * time.Hour
	}
	return decimal.NewFromFloat(elapsed.Seconds() / periodDur.Seconds())
}

func totalInterest(order types.OrderDetail, rate Rate) decimal.Decimal {
	if order.BorrowedAmount == nil {
		return decimal.Zero
	}
	return order.BorrowedAmount.Mul(rate.Rate).Mul(elapsedPeriods(order, rate))
}

func totalQuoteInterest(order types.OrderDetail, rate Rate) decimal.Decimal {
	base := totalInterest(order, rate)
	return base.Mul(order.Price)
}

// FlatInterestRateProvider returns the same configured rate for every
// exchange and asset; used in tests and paper-trading.
type FlatInterestRateProvider struct {
	rate decimal.Decimal
}

// NewFlatInterestRateProvider creates a provider quoting a constant daily
// rate.
func NewFlatInterestRateProvider(rate decimal.Decimal) *FlatInterestRateProvider {
	return &FlatInterestRateProvider{rate: rate}
}

func (p *FlatInterestRateProvider) GetInterestRate(_ context.Context, _ types.Exchange, asset string) (Rate, error) {
	return Rate{Asset: asset, At: time.Now(), Rate: p.rate, Period: PeriodDaily}, nil
}

func (p *FlatInterestRateProvider) InterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error) {
	getRateCounter.WithLabelValues(string(exchange), order.BaseAsset).Inc()
	return baseInterestFees(ctx, p, exchange, order, false)
}

func (p *FlatInterestRateProvider) QuoteInterestFeesSince(ctx context.Context, exchange types.Exchange, order types.OrderDetail) (decimal.Decimal, error) {
	getRateCounter.WithLabelValues(string(exchange), order.BaseAsset).Inc()
	return baseInterestFees(ctx, p, exchange, order, true)
}

var _ Provider = (*FlatInterestRateProvider)(nil)
