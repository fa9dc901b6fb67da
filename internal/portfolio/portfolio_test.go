package portfolio

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

type fakePairRegistry struct{ known map[string]bool }

func (r fakePairRegistry) Resolve(exchange types.Exchange, pair types.Pair) bool {
	return r.known[string(pair)]
}
func (r fakePairRegistry) RoundQty(_ types.Exchange, _ types.Pair, qty decimal.Decimal) decimal.Decimal {
	return qty
}
func (r fakePairRegistry) RoundPrice(_ types.Exchange, _ types.Pair, price decimal.Decimal) decimal.Decimal {
	return price
}

func newTestPortfolio(cash float64) *Portfolio {
	pairs := fakePairRegistry{known: map[string]bool{"BTC_USDT": true}}
	return New("test-strategy", decimal.NewFromFloat(cash), decimal.NewFromFloat(0.001), DefaultRiskLimits(), pairs, nil, zap.NewNop())
}

func TestMaybeConvertRejectsUnknownSymbol(t *testing.T) {
	p := newTestPortfolio(10000)
	sig := types.TradeSignal{Exchange: types.ExchangeBinance, Pair: "ZZZ_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100)}
	_, err := p.MaybeConvert(context.Background(), sig, "order-1")
	if err != ErrUnknownSymbol {
		t.Fatalf("err = %v; want ErrUnknownSymbol", err)
	}
}

// Scenario: portfolio initial cash = 10, signal requests qty=1 at
// price=100 (notional 100) — MaybeConvert must return RiskRejection,
// write no WAL entry, and never acquire the lock.
func TestMaybeConvertRejectsNotionalExceedingValueAsRiskRejection(t *testing.T) {
	p := newTestPortfolio(10)
	qty := decimal.NewFromInt(1)
	sig := types.TradeSignal{
		Exchange: types.ExchangeBinance, Pair: "BTC_USDT",
		Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty,
	}
	_, err := p.MaybeConvert(context.Background(), sig, "order-1")
	if err != ErrRiskRejection {
		t.Fatalf("err = %v; want ErrRiskRejection", err)
	}
	if p.AnyLocked() {
		t.Fatalf("expected no lock reserved on a rejected conversion")
	}
}

func TestMaybeConvertLocksAndRejectsConcurrentBuild(t *testing.T) {
	p := newTestPortfolio(10000)
	qty := decimal.NewFromFloat(0.1)
	sig := types.TradeSignal{
		Exchange: types.ExchangeBinance, Pair: "BTC_USDT",
		Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty,
	}
	req, err := p.MaybeConvert(context.Background(), sig, "order-1")
	if err != nil {
		t.Fatalf("maybe convert: %v", err)
	}
	if req.Side != types.OrderSideBuy {
		t.Fatalf("side = %v; want buy", req.Side)
	}

	key := Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}
	if !p.IsLocked(key) {
		t.Fatalf("expected pair locked after successful conversion")
	}

	if _, err := p.MaybeConvert(context.Background(), sig, "order-2"); err != ErrLocked {
		t.Fatalf("err = %v; want ErrLocked while position is locked", err)
	}
}

func TestReleaseFailedLockIncrementsCounter(t *testing.T) {
	p := newTestPortfolio(10000)
	qty := decimal.NewFromFloat(0.1)
	sig := types.TradeSignal{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty}
	if _, err := p.MaybeConvert(context.Background(), sig, "order-1"); err != nil {
		t.Fatalf("maybe convert: %v", err)
	}
	key := Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}
	p.ReleaseFailedLock(key)

	if p.IsLocked(key) {
		t.Fatalf("expected lock released")
	}
	if got := p.FailedPositions(key); got != 1 {
		t.Fatalf("failed positions = %d; want 1", got)
	}
}

func TestApplyTerminalTransactionOpensThenClosesPosition(t *testing.T) {
	p := newTestPortfolio(10000)
	qty := decimal.NewFromFloat(1)
	sig := types.TradeSignal{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty}
	key := Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}

	if _, err := p.MaybeConvert(context.Background(), sig, "order-1"); err != nil {
		t.Fatalf("maybe convert: %v", err)
	}

	openDetail := types.OrderDetail{
		ID: "order-1", Pair: "BTC_USDT", Side: types.OrderSideBuy,
		Price: decimal.NewFromInt(100), RealizedBaseQty: qty,
	}
	if err := p.ApplyTerminalTransaction(context.Background(), key, "order-1", openDetail, false); err != nil {
		t.Fatalf("apply terminal (open): %v", err)
	}
	if p.IsLocked(key) {
		t.Fatalf("expected lock released after opening fill")
	}
	open := p.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions = %d; want 1", len(open))
	}

	closeSig := types.TradeSignal{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Kind: types.SignalClose, Price: decimal.NewFromInt(110)}
	if _, err := p.MaybeConvert(context.Background(), closeSig, "order-2"); err != nil {
		t.Fatalf("maybe convert (close): %v", err)
	}
	closeDetail := types.OrderDetail{ID: "order-2", Pair: "BTC_USDT", Side: types.OrderSideSell, Price: decimal.NewFromInt(110)}
	if err := p.ApplyTerminalTransaction(context.Background(), key, "order-2", closeDetail, false); err != nil {
		t.Fatalf("apply terminal (close): %v", err)
	}

	if len(p.OpenPositions()) != 0 {
		t.Fatalf("expected no open positions after close")
	}
	history := p.History()
	if len(history) != 1 {
		t.Fatalf("history len = %d; want 1", len(history))
	}
	if !history[0].RealizedPnL.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("realized pnl = %v; want 10 (qty=1, open=100, close=110)", history[0].RealizedPnL)
	}
}

func TestMarkToMarketRequiresBothSides(t *testing.T) {
	p := newTestPortfolio(10000)
	env := types.MarketEventEnvelope{
		Exchange: types.ExchangeBinance, Pair: "BTC_USDT",
		Event: types.MarketEvent{Kind: types.MarketEventOrderbook, Orderbook: &types.Orderbook{
			Pair: "BTC_USDT",
			Bids: []types.OrderBookLevel{{Price: decimal.NewFromInt(99)}},
			// no asks
		}},
	}
	// Should not panic with a missing side.
	p.MarkToMarket(env)
}
