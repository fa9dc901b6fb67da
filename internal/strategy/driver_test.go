package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/actorkit"
	"github.com/atlas-desktop/trading-engine/internal/execution"
	"github.com/atlas-desktop/trading-engine/internal/portfolio"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// signalStrategy emits a fixed batch of signals on every Eval call.
type signalStrategy struct {
	key     string
	signals []types.TradeSignal
}

func (s *signalStrategy) Key() string                    { return s.key }
func (s *signalStrategy) Init(ctx context.Context) error { return nil }
func (s *signalStrategy) Eval(ctx context.Context, env types.MarketEventEnvelope) ([]types.TradeSignal, error) {
	return s.signals, nil
}
func (s *signalStrategy) Model() (map[string]any, error) { return nil, nil }
func (s *signalStrategy) Channels() map[types.Channel]struct{} {
	return map[types.Channel]struct{}{types.ChannelOrderbooks: {}}
}

// recordingSubmitter stages every order it sees unless failOn matches the
// pair of the request, in which case it reports a submission error.
type recordingSubmitter struct {
	mu      sync.Mutex
	staged  []types.AddOrderRequest
	failFor types.Pair
}

func (s *recordingSubmitter) StageOrder(ctx context.Context, id string, req types.AddOrderRequest) (execution.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor != "" && req.Pair == s.failFor {
		return execution.Transaction{}, errors.New("submission rejected")
	}
	s.staged = append(s.staged, req)
	return execution.Transaction{ID: id}, nil
}

// GetOrder is unused by the batch-conversion tests in this file; they
// never reach resolveOrders, so an always-absent result is sufficient.
func (s *recordingSubmitter) GetOrder(id string) (execution.Transaction, bool) {
	return execution.Transaction{}, false
}

func (s *recordingSubmitter) stagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

type fakePairs struct{}

func (fakePairs) Resolve(_ types.Exchange, _ types.Pair) bool { return true }
func (fakePairs) RoundQty(_ types.Exchange, _ types.Pair, qty decimal.Decimal) decimal.Decimal {
	return qty
}
func (fakePairs) RoundPrice(_ types.Exchange, _ types.Pair, price decimal.Decimal) decimal.Decimal {
	return price
}

func newTestDriver(t *testing.T, signals []types.TradeSignal, failFor types.Pair) (*Driver, *recordingSubmitter, *portfolio.Portfolio) {
	t.Helper()
	pf := portfolio.New("driver-test", decimal.NewFromInt(100000), decimal.NewFromFloat(0.001),
		portfolio.DefaultRiskLimits(), fakePairs{}, nil, zap.NewNop())
	sub := &recordingSubmitter{failFor: failFor}
	strat := &signalStrategy{key: "driver-test", signals: signals}
	d := NewDriver(strat, pf, sub, time.Hour, zap.NewNop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, sub, pf
}

func envelopeFor(pair types.Pair) types.MarketEventEnvelope {
	return types.MarketEventEnvelope{
		Exchange: types.ExchangeBinance,
		Pair:     pair,
		Event: types.MarketEvent{Kind: types.MarketEventOrderbook, Orderbook: &types.Orderbook{
			Pair: pair,
			Bids: []types.OrderBookLevel{{Price: decimal.NewFromInt(100)}},
			Asks: []types.OrderBookLevel{{Price: decimal.NewFromInt(101)}},
		}},
	}
}

func TestOnMarketEventStagesAllSignalsWhenEveryConversionSucceeds(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
		{Exchange: types.ExchangeBinance, Pair: "ETH_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
	}
	d, sub, pf := newTestDriver(t, signals, "")

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, envelopeFor("BTC_USDT"))
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	if got := sub.stagedCount(); got != 2 {
		t.Fatalf("staged = %d; want 2", got)
	}
	if !pf.IsLocked(portfolio.Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}) {
		t.Fatalf("expected BTC_USDT locked after staging")
	}
	if !pf.IsLocked(portfolio.Key{Exchange: types.ExchangeBinance, Pair: "ETH_USDT"}) {
		t.Fatalf("expected ETH_USDT locked after staging")
	}
}

func TestOnMarketEventReleasesLocksWhenAnyConversionFails(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
		// zero price forces MaybeConvert to reject the second signal.
		{Exchange: types.ExchangeBinance, Pair: "ETH_USDT", Side: types.OrderSideBuy, Price: decimal.Zero, Qty: &qty},
	}
	d, sub, pf := newTestDriver(t, signals, "")

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, envelopeFor("BTC_USDT"))
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	if got := sub.stagedCount(); got != 0 {
		t.Fatalf("staged = %d; want 0 (all-or-nothing batch must not partially submit)", got)
	}
	if pf.IsLocked(portfolio.Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}) {
		t.Fatalf("expected BTC_USDT lock released after batch failure")
	}
}

func TestOnMarketEventReleasesLockWhenStagingFails(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
	}
	d, sub, pf := newTestDriver(t, signals, "BTC_USDT")

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, envelopeFor("BTC_USDT"))
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	if got := sub.stagedCount(); got != 0 {
		t.Fatalf("staged = %d; want 0 (submitter rejected every order)", got)
	}
	if pf.IsLocked(portfolio.Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}) {
		t.Fatalf("expected lock released after staging failure")
	}
}

func TestOnMarketEventSkipsSignalsWhenTradingStopped(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
	}
	d, sub, _ := newTestDriver(t, signals, "")
	d.StopTrading()

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, envelopeFor("BTC_USDT"))
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	if got := sub.stagedCount(); got != 0 {
		t.Fatalf("staged = %d; want 0 while trading stopped", got)
	}
}

// terminalOrderSubmitter stages orders and reports a configurable
// terminal status back from GetOrder, so resolveOrders has something to
// observe.
type terminalOrderSubmitter struct {
	mu     sync.Mutex
	orders map[string]execution.Transaction
}

func newTerminalOrderSubmitter() *terminalOrderSubmitter {
	return &terminalOrderSubmitter{orders: make(map[string]execution.Transaction)}
}

func (s *terminalOrderSubmitter) StageOrder(ctx context.Context, id string, req types.AddOrderRequest) (execution.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := execution.Transaction{ID: id, Status: execution.TransactionStatus{Kind: execution.StatusNew}}
	s.orders[id] = txn
	return txn, nil
}

func (s *terminalOrderSubmitter) GetOrder(id string) (execution.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.orders[id]
	return t, ok
}

func (s *terminalOrderSubmitter) setFilled(id string, detail types.OrderDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id] = execution.Transaction{ID: id, Status: execution.TransactionStatus{Kind: execution.StatusFilled, Filled: &detail}}
}

func TestResolveOrdersAppliesFillAndReEvaluatesLastEvent(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
	}
	sub := newTerminalOrderSubmitter()
	pf := portfolio.New("driver-test", decimal.NewFromInt(100000), decimal.NewFromFloat(0.001),
		portfolio.DefaultRiskLimits(), fakePairs{}, nil, zap.NewNop())
	strat := &signalStrategy{key: "driver-test", signals: signals}
	d := NewDriver(strat, pf, sub, time.Hour, zap.NewNop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	key := portfolio.Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}
	env := envelopeFor("BTC_USDT")

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, env)
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	if !pf.IsLocked(key) {
		t.Fatalf("expected BTC_USDT locked after first eval")
	}

	var orderID string
	for id := range sub.orders {
		orderID = id
	}
	sub.setFilled(orderID, types.OrderDetail{
		ID: orderID, Pair: "BTC_USDT", Side: types.OrderSideBuy,
		Price: decimal.NewFromInt(100), RealizedBaseQty: qty,
	})

	done2 := make(chan struct{})
	ok = d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.resolveOrders(ctx)
		close(done2)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done2

	if pf.IsLocked(key) {
		t.Fatalf("expected lock cleared once the order manager reports Filled")
	}
	if len(pf.OpenPositions()) != 1 {
		t.Fatalf("open positions = %d; want 1 after fill applied", len(pf.OpenPositions()))
	}
	// The strategy always re-emits the same open signal, but the pair now
	// has an open position, so the second MaybeConvert call must hit
	// ErrPositionConflict rather than staging a duplicate order; the
	// re-evaluation path itself (lock no longer reserved) is what this
	// test exercises.
	if pf.IsLocked(key) {
		t.Fatalf("expected re-evaluation to not leave a stale lock")
	}
}

func TestResolveOrdersSingleFlightGuardSkipsOverlappingTick(t *testing.T) {
	qty := decimal.NewFromFloat(0.1)
	signals := []types.TradeSignal{
		{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Side: types.OrderSideBuy, Price: decimal.NewFromInt(100), Qty: &qty},
	}
	sub := newTerminalOrderSubmitter()
	pf := portfolio.New("driver-test", decimal.NewFromInt(100000), decimal.NewFromFloat(0.001),
		portfolio.DefaultRiskLimits(), fakePairs{}, nil, zap.NewNop())
	strat := &signalStrategy{key: "driver-test", signals: signals}
	d := NewDriver(strat, pf, sub, time.Hour, zap.NewNop())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)

	key := portfolio.Key{Exchange: types.ExchangeBinance, Pair: "BTC_USDT"}
	env := envelopeFor("BTC_USDT")

	done := make(chan struct{})
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.onMarketEvent(ctx, env)
		close(done)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done

	var orderID string
	for id := range sub.orders {
		orderID = id
	}
	sub.setFilled(orderID, types.OrderDetail{
		ID: orderID, Pair: "BTC_USDT", Side: types.OrderSideBuy,
		Price: decimal.NewFromInt(100), RealizedBaseQty: qty,
	})

	// Simulate a resolution tick already in flight: a second, overlapping
	// tick must be a no-op rather than double-applying the fill.
	d.resolving.Store(true)

	done2 := make(chan struct{})
	ok = d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		d.resolveOrders(ctx)
		close(done2)
	}))
	if !ok {
		t.Fatalf("send failed")
	}
	<-done2

	if !pf.IsLocked(key) {
		t.Fatalf("expected lock to remain held while a resolution tick is already in flight")
	}
}
