// Package execution provides order management capabilities: a compacted
// write-ahead log of order transactions, a forward-only state machine
// over that log, and startup reconciliation against the exchange.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/actorkit"
	"github.com/atlas-desktop/trading-engine/internal/metrics"
	"github.com/atlas-desktop/trading-engine/internal/storage"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// ExchangeAPI is the narrow capability the order manager needs from an
// exchange connector: submit an order and poll its current status. This
// is the seam StageOrder and Reconcile call through; concrete REST/WS
// clients implement it outside this package.
type ExchangeAPI interface {
	SubmitOrder(ctx context.Context, req types.AddOrderRequest) (OrderInfo, error)
	QueryOrder(ctx context.Context, orderID string) (TransactionStatus, error)
}

func walTable(exchange types.Exchange) string {
	return fmt.Sprintf("om_%s/transactions_wal", exchange)
}

// OrderManager owns one compacted write-ahead log per exchange and
// exposes the stage/get/cancel contract the portfolio drives orders
// through.
type OrderManager struct {
	logger   *zap.Logger
	exchange types.Exchange
	api      ExchangeAPI
	wal      *Wal[Transaction]
	actor    *actorkit.Actor

	mu     sync.RWMutex
	latest map[string]Transaction // in-memory compacted view
}

// NewOrderManager opens (or reuses) the WAL table for exchange and starts
// the manager's single-goroutine actor. Every state transition is
// applied on that actor so concurrent callers never race writing the
// compacted view.
func NewOrderManager(db storage.Storage, exchange types.Exchange, api ExchangeAPI, logger *zap.Logger) (*OrderManager, error) {
	wal, err := NewWal[Transaction](db, walTable(exchange))
	if err != nil {
		return nil, err
	}
	om := &OrderManager{
		logger:   logger.Named("order-manager").With(zap.String("exchange", string(exchange))),
		exchange: exchange,
		api:      api,
		wal:      wal,
		latest:   make(map[string]Transaction),
		actor:    actorkit.NewActor(fmt.Sprintf("order-manager-%s", exchange), 256, logger),
	}
	om.actor.Start()
	return om, nil
}

// Reconcile loads the compacted WAL view and, for every order still in a
// non-terminal state (Staged/New/PartiallyFilled), re-queries the
// exchange and appends whatever it reports. Call this once at startup.
func (om *OrderManager) Reconcile(ctx context.Context) error {
	compacted, err := om.wal.GetAllCompacted()
	if err != nil {
		return fmt.Errorf("execution: reconcile load %s: %w", om.exchange, err)
	}

	om.mu.Lock()
	om.latest = compacted
	om.mu.Unlock()

	for id, txn := range compacted {
		if txn.Status.Kind == StatusFilled || txn.Status.Kind == StatusRejected {
			continue
		}
		status, err := om.api.QueryOrder(ctx, id)
		if err != nil {
			om.logger.Error("reconcile: query failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if err := om.applyTransition(id, status); err != nil {
			om.logger.Error("reconcile: apply failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return nil
}

// StageOrder writes a Staged record, submits it to the exchange, and
// appends the resulting New (or Rejected, on submission failure) record.
// The whole sequence runs on the manager's actor so transitions for
// different orders never interleave into a torn compacted view.
func (om *OrderManager) StageOrder(ctx context.Context, id string, req types.AddOrderRequest) (Transaction, error) {
	type result struct {
		txn Transaction
		err error
	}
	reply := make(chan result, 1)

	ok := om.actor.Send(actorkit.MessageFunc(func(_ context.Context) {
		staged := TransactionStatus{Kind: StatusStaged, Staged: &OrderQuery{Request: req}}
		if err := om.appendAndCache(id, staged); err != nil {
			reply <- result{err: err}
			return
		}

		info, err := om.api.SubmitOrder(ctx, req)
		if err != nil {
			rejected := TransactionStatus{Kind: StatusRejected, Rejected: &Rejection{Kind: RejectOther, Message: err.Error()}}
			_ = om.appendAndCache(id, rejected)
			metrics.OrderRejections.WithLabelValues(string(om.exchange), "other").Inc()
			reply <- result{txn: Transaction{ID: id, Status: rejected}, err: err}
			return
		}

		newStatus := TransactionStatus{Kind: StatusNew, New: &info}
		if err := om.appendAndCache(id, newStatus); err != nil {
			reply <- result{err: err}
			return
		}
		reply <- result{txn: Transaction{ID: id, Status: newStatus}}
	}))
	if !ok {
		return Transaction{}, fmt.Errorf("execution: order manager actor stopped")
	}

	select {
	case r := <-reply:
		return r.txn, r.err
	case <-ctx.Done():
		return Transaction{}, ctx.Err()
	}
}

// applyTransition appends an exchange-reported status for id, guarded by
// is_before so a stale or duplicate update can never move a terminal
// order backward.
func (om *OrderManager) applyTransition(id string, status TransactionStatus) error {
	om.mu.RLock()
	current, present := om.latest[id]
	om.mu.RUnlock()
	if present && !current.Status.IsBefore(status) {
		return nil
	}
	return om.appendAndCache(id, status)
}

func (om *OrderManager) appendAndCache(id string, status TransactionStatus) error {
	if err := om.wal.AppendRaw(id, time.Now().UnixNano(), Transaction{ID: id, Status: status}); err != nil {
		return fmt.Errorf("execution: append wal %s/%s: %w", om.exchange, id, err)
	}
	om.mu.Lock()
	om.latest[id] = Transaction{ID: id, Status: status}
	om.mu.Unlock()
	return nil
}

// ApplyOrderUpdate is the entry point for asynchronous exchange
// callbacks (fills, rejections) arriving outside the StageOrder flow.
func (om *OrderManager) ApplyOrderUpdate(ctx context.Context, id string, status TransactionStatus) error {
	done := make(chan error, 1)
	ok := om.actor.Send(actorkit.MessageFunc(func(_ context.Context) {
		done <- om.applyTransition(id, status)
	}))
	if !ok {
		return fmt.Errorf("execution: order manager actor stopped")
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetOrder returns the current compacted transaction for id.
func (om *OrderManager) GetOrder(id string) (Transaction, bool) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	t, ok := om.latest[id]
	return t, ok
}

// GetHistory returns every WAL record ever written for id, in
// chronological order.
func (om *OrderManager) GetHistory(id string) ([]Transaction, error) {
	return om.wal.GetAllK(id)
}

// CancelOrder marks an order Rejected(Cancelled) locally; the caller is
// responsible for having already requested cancellation at the exchange.
func (om *OrderManager) CancelOrder(ctx context.Context, id string, reason string) error {
	return om.ApplyOrderUpdate(ctx, id, TransactionStatus{
		Kind:     StatusRejected,
		Rejected: &Rejection{Kind: RejectCancelled, Reason: reason},
	})
}

// OpenOrders returns every order not yet in a terminal (Filled/Rejected)
// state.
func (om *OrderManager) OpenOrders() []Transaction {
	om.mu.RLock()
	defer om.mu.RUnlock()
	out := make([]Transaction, 0, len(om.latest))
	for _, t := range om.latest {
		if t.Status.Kind != StatusFilled && t.Status.Kind != StatusRejected {
			out = append(out, t)
		}
	}
	return out
}

// Stop shuts down the manager's actor.
func (om *OrderManager) Stop() { om.actor.Stop() }
