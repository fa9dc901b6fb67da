package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/interest"
	"github.com/atlas-desktop/trading-engine/internal/metrics"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Lock reserves a (exchange,pair) key from the moment maybe_convert
// succeeds until the referenced order reaches a terminal state.
type Lock struct {
	OrderID string
	Since   time.Time
}

// Portfolio is one strategy's ledger: cash, open positions keyed by
// (exchange,pair), a history of closed positions, per-pair locks, and
// the conversion of signals into order requests. One Portfolio instance
// is owned by exactly one strategy driver.
type Portfolio struct {
	strategy         string
	initialQuoteCash decimal.Decimal
	feesRate         decimal.Decimal
	limits           RiskLimits
	pairs            PairRegistry
	rates            interest.Provider
	logger           *zap.Logger

	mu               sync.RWMutex
	openPositions    map[Key]*Position
	positionsHistory []Position
	locks            map[Key]Lock
	lastPrices       map[Key]decimal.Decimal
	failedPositions  map[Key]int
}

// New constructs a Portfolio for one strategy instance.
func New(strategy string, initialQuoteCash, feesRate decimal.Decimal, limits RiskLimits, pairs PairRegistry, rates interest.Provider, logger *zap.Logger) *Portfolio {
	return &Portfolio{
		strategy:         strategy,
		initialQuoteCash: initialQuoteCash,
		feesRate:         feesRate,
		limits:           limits,
		pairs:            pairs,
		rates:            rates,
		logger:           logger.Named("portfolio").With(zap.String("strategy", strategy)),
		openPositions:    make(map[Key]*Position),
		locks:            make(map[Key]Lock),
		lastPrices:       make(map[Key]decimal.Decimal),
		failedPositions:  make(map[Key]int),
	}
}

// Value is the current mark-to-market value of the portfolio: initial
// cash plus realized PnL from history plus unrealized PnL of every open
// position.
func (p *Portfolio) Value() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valueLocked()
}

func (p *Portfolio) valueLocked() decimal.Decimal {
	v := p.initialQuoteCash
	for _, pos := range p.positionsHistory {
		v = v.Add(pos.RealizedPnL)
	}
	for _, pos := range p.openPositions {
		v = v.Add(pos.UnrealizedPnL)
	}
	return v
}

// PnL is total profit and loss: current value minus initial cash.
func (p *Portfolio) PnL() decimal.Decimal {
	return p.Value().Sub(p.initialQuoteCash)
}

// CurrentReturn is PnL expressed as a fraction of initial cash.
func (p *Portfolio) CurrentReturn() decimal.Decimal {
	if p.initialQuoteCash.IsZero() {
		return decimal.Zero
	}
	return p.PnL().Div(p.initialQuoteCash)
}

// IsLocked reports whether key currently has a reserved, in-flight order.
func (p *Portfolio) IsLocked(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.locks[key]
	return ok
}

// AnyLocked reports whether any (exchange,pair) in this portfolio is
// currently locked. The driver consults this before calling MaybeConvert
// again for a given strategy instance.
func (p *Portfolio) AnyLocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.locks) > 0
}

// MaybeConvert validates and sizes signal, applies pair rounding and
// margin side-effect rules, and reserves a lock on (exchange,pair) keyed
// by the returned order's id. The caller is responsible for actually
// staging the order with the order manager; on staging failure it must
// call ReleaseFailedLock.
func (p *Portfolio) MaybeConvert(ctx context.Context, signal types.TradeSignal, orderID string) (types.AddOrderRequest, error) {
	if !p.pairs.Resolve(signal.Exchange, signal.Pair) {
		return types.AddOrderRequest{}, ErrUnknownSymbol
	}
	if signal.Price.IsZero() || signal.Price.IsNegative() {
		return types.AddOrderRequest{}, ErrRiskRejection
	}

	key := Key{Exchange: signal.Exchange, Pair: signal.Pair}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, locked := p.locks[key]; locked {
		return types.AddOrderRequest{}, ErrLocked
	}

	open, hasOpen := p.openPositions[key]

	side := signal.Side
	var qty decimal.Decimal
	sideEffect := types.SideEffectNone

	switch signal.Kind {
	case types.SignalClose:
		if !hasOpen {
			return types.AddOrderRequest{}, ErrPositionConflict
		}
		side = open.OpenOrder.Side.Opposite()
		qty = open.Quantity
		if signal.AssetType.IsMargin() {
			sideEffect = types.SideEffectAutoRepay
		}
	default:
		if hasOpen {
			return types.AddOrderRequest{}, ErrPositionConflict
		}
		if signal.Qty != nil {
			qty = *signal.Qty
		} else {
			sized, err := p.limits.sizeFromValue(p.valueLocked(), signal.Price)
			if err != nil {
				return types.AddOrderRequest{}, err
			}
			qty = sized
		}
		if signal.AssetType.IsMargin() {
			sideEffect = types.SideEffectMarginBuy
		}
	}

	if qty.IsZero() || qty.IsNegative() {
		return types.AddOrderRequest{}, ErrRiskRejection
	}

	qty = p.pairs.RoundQty(signal.Exchange, signal.Pair, qty)
	price := p.pairs.RoundPrice(signal.Exchange, signal.Pair, signal.Price)
	if qty.IsZero() {
		return types.AddOrderRequest{}, ErrRiskRejection
	}

	notional := qty.Mul(price)
	if notional.GreaterThan(p.valueLocked()) && signal.Kind != types.SignalClose {
		return types.AddOrderRequest{}, ErrRiskRejection
	}

	req := types.AddOrderRequest{
		Exchange:   signal.Exchange,
		Pair:       signal.Pair,
		Side:       side,
		OrderType:  types.OrderTypeLimit,
		AssetType:  signal.AssetType,
		Price:      price,
		BaseQty:    qty,
		SideEffect: sideEffect,
		SignalID:   signal.Reason,
	}

	p.locks[key] = Lock{OrderID: orderID, Since: time.Now()}
	metrics.StrategySignals.WithLabelValues(p.strategy).Inc()
	return req, nil
}

// ReleaseFailedLock releases the lock on key after the order manager
// failed to stage the corresponding order, incrementing the failed
// position counter for that key.
func (p *Portfolio) ReleaseFailedLock(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, key)
	p.failedPositions[key]++
}

// FailedPositions returns the number of staging failures recorded for key.
func (p *Portfolio) FailedPositions(key Key) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failedPositions[key]
}

// MarkToMarket updates last_prices and recomputes unrealized PnL for any
// open position on the envelope's pair. It is a no-op for non-orderbook
// events or pairs with no open position.
func (p *Portfolio) MarkToMarket(env types.MarketEventEnvelope) {
	if env.Event.Kind != types.MarketEventOrderbook || env.Event.Orderbook == nil {
		return
	}
	book := env.Event.Orderbook
	if len(book.Bids) == 0 {
		p.logger.Debug("mark to market: missing bids", zap.String("pair", string(book.Pair)))
		return
	}
	if len(book.Asks) == 0 {
		p.logger.Debug("mark to market: missing asks", zap.String("pair", string(book.Pair)))
		return
	}
	mid := book.Bids[0].Price.Add(book.Asks[0].Price).Div(decimal.NewFromInt(2))

	key := Key{Exchange: env.Exchange, Pair: env.Pair}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrices[key] = mid
	if pos, ok := p.openPositions[key]; ok {
		pos.MarkToMarket(mid)
		metrics.PortfolioValue.WithLabelValues(p.strategy).Set(toFloat(p.valueLocked()))
		metrics.PortfolioPnL.WithLabelValues(p.strategy).Set(toFloat(p.valueLocked().Sub(p.initialQuoteCash)))
	}
}

// ApplyTerminalTransaction translates an order manager terminal
// transaction referencing a locked order id into a position update: an
// opening fill creates a Position, a closing fill finalizes and moves
// the matching open Position to history. It is a no-op if orderID does
// not match any current lock.
func (p *Portfolio) ApplyTerminalTransaction(ctx context.Context, key Key, orderID string, detail types.OrderDetail, rejected bool) error {
	p.mu.Lock()
	lock, locked := p.locks[key]
	p.mu.Unlock()
	if !locked || lock.OrderID != orderID {
		return nil
	}

	if rejected {
		p.ReleaseFailedLock(key)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	open, hasOpen := p.openPositions[key]
	if !hasOpen {
		kind := types.PositionKindLong
		if detail.Side == types.OrderSideSell {
			kind = types.PositionKindShort
		}
		openAt := time.Now()
		if detail.OpenAt != nil {
			openAt = *detail.OpenAt
		}
		p.openPositions[key] = &Position{
			Exchange:           key.Exchange,
			Pair:               key.Pair,
			Kind:               kind,
			OpenOrder:          detail,
			Quantity:           detail.RealizedBaseQty,
			OpenAt:             openAt,
			CurrentSymbolPrice: detail.Price,
			BorrowedAmount:     detail.BorrowedAmount,
			IncurredFees:       sumFees(detail.Fills),
		}
		delete(p.locks, key)
		return nil
	}

	// Closing fill: finalize the open position.
	closeOrder := detail
	open.CloseOrder = &closeOrder
	closeAt := time.Now()
	if detail.CloseAt != nil {
		closeAt = *detail.CloseAt
	}
	open.CloseAt = &closeAt
	open.IncurredFees = open.IncurredFees.Add(sumFees(detail.Fills))

	if open.BorrowedAmount != nil && p.rates != nil {
		fee, err := p.rates.QuoteInterestFeesSince(ctx, key.Exchange, open.OpenOrder)
		if err != nil {
			return fmt.Errorf("portfolio: interest fee lookup: %w", ErrInterestRateUnavailable)
		}
		open.AccruedInterest = fee
	}

	open.MarkToMarket(detail.Price)
	open.RealizedPnL = open.UnrealizedPnL

	p.positionsHistory = append(p.positionsHistory, *open)
	delete(p.openPositions, key)
	delete(p.locks, key)
	return nil
}

// Locks returns a snapshot of every currently reserved (exchange,pair)
// lock, keyed the same way open positions are. The driver's resolution
// tick walks this to find order ids it needs to re-query.
func (p *Portfolio) Locks() map[Key]Lock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Key]Lock, len(p.locks))
	for k, v := range p.locks {
		out[k] = v
	}
	return out
}

// OpenPositions returns a snapshot of currently open positions.
func (p *Portfolio) OpenPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.openPositions))
	for _, pos := range p.openPositions {
		out = append(out, *pos)
	}
	return out
}

// History returns a snapshot of closed positions.
func (p *Portfolio) History() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, len(p.positionsHistory))
	copy(out, p.positionsHistory)
	return out
}

func sumFees(fills []types.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Fee)
	}
	return total
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
