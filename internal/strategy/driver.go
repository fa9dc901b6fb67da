package strategy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/actorkit"
	"github.com/atlas-desktop/trading-engine/internal/broker"
	"github.com/atlas-desktop/trading-engine/internal/execution"
	"github.com/atlas-desktop/trading-engine/internal/portfolio"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// LifecycleCmd names a driver supervisor command.
type LifecycleCmd int

const (
	CmdRestart LifecycleCmd = iota
	CmdStopTrading
	CmdResumeTrading
)

// ModelResetRequest wipes one or all of a strategy's persisted models.
type ModelResetRequest struct {
	Name         string // empty means "all models"
	StopTrading  bool
	RestartAfter bool
}

// OrderSubmitter is the narrow capability the driver needs from an order
// manager: stage new requests and query the current state of ones
// already in flight.
type OrderSubmitter interface {
	StageOrder(ctx context.Context, id string, req types.AddOrderRequest) (execution.Transaction, error)
	GetOrder(id string) (execution.Transaction, bool)
}

// Driver runs one strategy instance: it absorbs market events, maintains
// models, evaluates the strategy, converts signals to orders via the
// portfolio, and periodically resolves outstanding orders. Every
// operation runs on a single actor so model state is never torn by
// concurrent events.
type Driver struct {
	strategy  Strategy
	portfolio *portfolio.Portfolio
	orders    OrderSubmitter
	logger    *zap.Logger
	actor     *actorkit.Actor

	resolveInterval time.Duration
	stopResolve     chan struct{}

	trading   atomic.Bool
	resolving atomic.Bool // single-flight guard for resolveOrders

	lastEnvelope *types.MarketEventEnvelope // last event seen, for re-eval once a lock clears
}

// NewDriver constructs a Driver for strategy, wired to portfolio and an
// order submitter. Init must be called before Start.
func NewDriver(strategy Strategy, pf *portfolio.Portfolio, orders OrderSubmitter, resolveInterval time.Duration, logger *zap.Logger) *Driver {
	d := &Driver{
		strategy:        strategy,
		portfolio:       pf,
		orders:          orders,
		logger:          logger.Named("driver").With(zap.String("strategy", strategy.Key())),
		actor:           actorkit.NewActor("driver-"+strategy.Key(), 256, logger),
		resolveInterval: resolveInterval,
		stopResolve:     make(chan struct{}),
	}
	d.trading.Store(true)
	return d
}

// Start initializes the strategy and begins the order-resolution tick.
// The strategy's Init is called exactly once, on the driver's actor.
func (d *Driver) Start(ctx context.Context) error {
	d.actor.Start()
	initErr := make(chan error, 1)
	ok := d.actor.Send(actorkit.MessageFunc(func(ctx context.Context) {
		initErr <- d.strategy.Init(ctx)
	}))
	if !ok {
		return fmt.Errorf("strategy: driver actor stopped before init")
	}
	select {
	case err := <-initErr:
		if err != nil {
			return fmt.Errorf("strategy: init %s: %w", d.strategy.Key(), err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	go d.resolutionLoop()
	return nil
}

// Subscribe registers the driver against every channel the strategy
// declared at construction. Channels must be constant over the
// strategy's lifetime.
func (d *Driver) Subscribe(mb *broker.MarketBroker, exchange types.Exchange, pair types.Pair) {
	recipient := driverRecipient{d}
	for ch := range d.strategy.Channels() {
		mb.Register(types.Subject{Exchange: exchange, Pair: pair, Channel: ch}, recipient)
	}
}

// driverRecipient adapts a Driver into a broker.Recipient backed by its
// actor's bounded mailbox: a full mailbox reports failure rather than
// blocking the broker's dispatch goroutine.
type driverRecipient struct{ d *Driver }

func (r driverRecipient) Send(env types.MarketEventEnvelope) bool {
	return r.d.actor.TrySend(actorkit.MessageFunc(func(ctx context.Context) {
		r.d.onMarketEvent(ctx, env)
	}))
}

// onMarketEvent implements the per-envelope contract: update models via
// eval, and — if trading is enabled and signals were produced — convert
// and stage them all-or-nothing. The envelope is retained so a
// resolution tick that clears a lock can re-evaluate against it without
// waiting for the next live event.
func (d *Driver) onMarketEvent(ctx context.Context, env types.MarketEventEnvelope) {
	d.portfolio.MarkToMarket(env)
	d.lastEnvelope = &env
	d.evalAndStage(ctx, env)
}

// evalAndStage runs the strategy against env and, if trading is
// enabled and it produced signals, converts and stages them
// all-or-nothing. Only ever called from the driver's actor.
func (d *Driver) evalAndStage(ctx context.Context, env types.MarketEventEnvelope) {
	signals, err := d.strategy.Eval(ctx, env)
	if err != nil {
		d.logger.Warn("eval failed", zap.Error(err), zap.String("trace_id", env.TraceID))
		return
	}
	if len(signals) == 0 || !d.trading.Load() {
		return
	}

	type staged struct {
		key portfolio.Key
		req types.AddOrderRequest
		id  string
	}
	batch := make([]staged, 0, len(signals))

	for i, sig := range signals {
		key := portfolio.Key{Exchange: sig.Exchange, Pair: sig.Pair}
		if d.portfolio.IsLocked(key) {
			d.logger.Debug("signal dropped: pair locked", zap.String("pair", string(sig.Pair)))
			continue
		}
		id := fmt.Sprintf("%s-%s-%d", d.strategy.Key(), sig.Pair, i)
		req, err := d.portfolio.MaybeConvert(ctx, sig, id)
		if err != nil {
			d.logger.Warn("signal conversion rejected", zap.Error(err), zap.String("pair", string(sig.Pair)))
			for _, b := range batch {
				d.portfolio.ReleaseFailedLock(b.key)
			}
			return
		}
		batch = append(batch, staged{key: key, req: req, id: id})
	}

	for _, b := range batch {
		if _, err := d.orders.StageOrder(ctx, b.id, b.req); err != nil {
			d.logger.Error("order staging failed", zap.Error(err), zap.String("order_id", b.id))
			d.portfolio.ReleaseFailedLock(b.key)
		}
	}
}

func (d *Driver) resolutionLoop() {
	ticker := time.NewTicker(d.resolveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.actor.TrySend(actorkit.MessageFunc(func(ctx context.Context) {
				d.resolveOrders(ctx)
			}))
		case <-d.stopResolve:
			return
		}
	}
}

// resolveOrders is the periodic re-check against every locked
// (exchange,pair): query the order manager for the lock's order id, and
// on a terminal status (filled or rejected) apply it to the portfolio,
// clearing the lock. If any lock cleared, the strategy is re-evaluated
// against the last seen event so a pair freed this tick doesn't have to
// wait for the next live event to trade again.
//
// resolveOrders only ever runs on the driver's own actor, so ticks
// already can't truly overlap; the guard mirrors the source's
// is_checking_orders flag (needed there because its scheduler could
// start a new interval closure before the previous one's future
// resolved) so a second tick posted while this one is still querying
// the order manager is dropped instead of queueing up redundant work.
func (d *Driver) resolveOrders(ctx context.Context) {
	if !d.resolving.CompareAndSwap(false, true) {
		return
	}
	defer d.resolving.Store(false)

	locks := d.portfolio.Locks()
	if len(locks) == 0 {
		return
	}

	anyCleared := false
	for key, lock := range locks {
		txn, ok := d.orders.GetOrder(lock.OrderID)
		if !ok {
			continue
		}

		switch txn.Status.Kind {
		case execution.StatusFilled:
			detail := types.OrderDetail{}
			if txn.Status.Filled != nil {
				detail = *txn.Status.Filled
			}
			if err := d.portfolio.ApplyTerminalTransaction(ctx, key, lock.OrderID, detail, false); err != nil {
				d.logger.Error("resolve orders: apply fill failed", zap.Error(err), zap.String("order_id", lock.OrderID))
				continue
			}
			anyCleared = true
		case execution.StatusRejected:
			if err := d.portfolio.ApplyTerminalTransaction(ctx, key, lock.OrderID, types.OrderDetail{}, true); err != nil {
				d.logger.Error("resolve orders: apply rejection failed", zap.Error(err), zap.String("order_id", lock.OrderID))
				continue
			}
			anyCleared = true
		default:
			// Staged/New/PartiallyFilled: still in flight, nothing to do.
		}
	}

	if anyCleared && d.trading.Load() && d.lastEnvelope != nil {
		d.evalAndStage(ctx, *d.lastEnvelope)
	}
}

// StopTrading disables signal emission; models still update on every
// event.
func (d *Driver) StopTrading() { d.trading.Store(false) }

// ResumeTrading re-enables signal emission.
func (d *Driver) ResumeTrading() { d.trading.Store(true) }

// ModelReset wipes the named model (or every model, if req.Name is
// empty) and optionally stops trading. Concrete model wiping is
// delegated to the strategy implementation via its Model/Eval contract.
func (d *Driver) ModelReset(req ModelResetRequest) {
	if req.StopTrading {
		d.StopTrading()
	}
}

// Stop halts the resolution loop and the driver's actor.
func (d *Driver) Stop() {
	close(d.stopResolve)
	d.actor.Stop()
}
