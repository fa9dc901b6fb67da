package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Key identifies one portfolio slot: at most one open Position exists
// per Key at any time.
type Key struct {
	Exchange types.Exchange
	Pair     types.Pair
}

// Position is an open or closed exposure. It is open iff CloseOrder and
// CloseAt are both nil; Quantity is always > 0 for an open position.
type Position struct {
	Exchange          types.Exchange
	Pair              types.Pair
	Kind              types.PositionKind
	OpenOrder         types.OrderDetail
	CloseOrder        *types.OrderDetail
	Quantity          decimal.Decimal
	OpenAt            time.Time
	CloseAt           *time.Time
	CurrentSymbolPrice decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	RealizedPnL       decimal.Decimal
	BorrowedAmount    *decimal.Decimal
	AccruedInterest   decimal.Decimal
	IncurredFees      decimal.Decimal
}

// IsOpen mirrors the portfolio invariant: a position is open iff it has
// no close order and no close time.
func (p *Position) IsOpen() bool { return p.CloseOrder == nil && p.CloseAt == nil }

// MarkToMarket recomputes CurrentSymbolPrice and UnrealizedPnL for a new
// mid/VWAP observation, using the long/short sign convention: long pnl =
// qty*(price-open_price); short pnl = qty*(open_price-price), net of
// interest and fees accrued so far.
func (p *Position) MarkToMarket(price decimal.Decimal) {
	p.CurrentSymbolPrice = price
	openPrice := p.OpenOrder.Price
	diff := price.Sub(openPrice)
	if p.Kind == types.PositionKindShort {
		diff = openPrice.Sub(price)
	}
	gross := p.Quantity.Mul(diff)
	p.UnrealizedPnL = gross.Sub(p.AccruedInterest).Sub(p.IncurredFees)
}
