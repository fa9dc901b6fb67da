package portfolio

import "github.com/shopspring/decimal"

// RiskLimits bounds the sizing `maybe_convert` applies to a signal that
// does not carry an explicit quantity, and the order sizes it will
// accept at all. Field names mirror the risk configuration vocabulary
// already used by the engine's order-level risk manager.
type RiskLimits struct {
	RiskPerTrade  decimal.Decimal // fraction of portfolio value risked per trade
	MinOrderSize  decimal.Decimal
	MaxOrderSize  decimal.Decimal
	MaxOrderValue decimal.Decimal
}

// DefaultRiskLimits returns a conservative set of limits suitable for a
// fresh portfolio with no explicit configuration.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		RiskPerTrade:  decimal.NewFromFloat(0.02),
		MinOrderSize:  decimal.NewFromFloat(0.0001),
		MaxOrderSize:  decimal.NewFromInt(1_000_000),
		MaxOrderValue: decimal.NewFromInt(1_000_000),
	}
}

// sizeFromValue derives an order quantity from the portfolio's current
// value and the signal price, bounded by RiskPerTrade and the
// min/max order size limits.
func (l RiskLimits) sizeFromValue(portfolioValue, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() || price.IsNegative() {
		return decimal.Zero, ErrRiskRejection
	}
	riskBudget := portfolioValue.Mul(l.RiskPerTrade)
	qty := riskBudget.Div(price)
	if qty.GreaterThan(l.MaxOrderSize) {
		qty = l.MaxOrderSize
	}
	if qty.LessThan(l.MinOrderSize) {
		return decimal.Zero, ErrRiskRejection
	}
	if qty.Mul(price).GreaterThan(l.MaxOrderValue) {
		qty = l.MaxOrderValue.Div(price)
	}
	return qty, nil
}
