package execution

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/storage"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

type fakeExchange struct {
	submitErr error
	nextID    string
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req types.AddOrderRequest) (OrderInfo, error) {
	if f.submitErr != nil {
		return OrderInfo{}, f.submitErr
	}
	return OrderInfo{ID: f.nextID, Timestamp: 1}, nil
}

func (f *fakeExchange) QueryOrder(ctx context.Context, orderID string) (TransactionStatus, error) {
	return TransactionStatus{Kind: StatusNew, New: &OrderInfo{ID: orderID}}, nil
}

func newTestOrderManager(t *testing.T, api ExchangeAPI) *OrderManager {
	t.Helper()
	om, err := NewOrderManager(storage.NewMemoryStore(), types.ExchangeBinance, api, zap.NewNop())
	if err != nil {
		t.Fatalf("new order manager: %v", err)
	}
	t.Cleanup(om.Stop)
	return om
}

func TestStageOrderSuccessReachesNew(t *testing.T) {
	om := newTestOrderManager(t, &fakeExchange{nextID: "exch-1"})
	txn, err := om.StageOrder(context.Background(), "order-1", types.AddOrderRequest{Pair: "BTC_USDT"})
	if err != nil {
		t.Fatalf("stage order: %v", err)
	}
	if txn.Status.Kind != StatusNew {
		t.Fatalf("status = %v; want New", txn.Status.Kind)
	}

	got, ok := om.GetOrder("order-1")
	if !ok || got.Status.Kind != StatusNew {
		t.Fatalf("GetOrder = %v, %v; want New, true", got, ok)
	}

	history, err := om.GetHistory("order-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d; want 2 (staged, new)", len(history))
	}
	if history[0].Status.Kind != StatusStaged || history[1].Status.Kind != StatusNew {
		t.Fatalf("history kinds = %v, %v; want Staged, New", history[0].Status.Kind, history[1].Status.Kind)
	}
}

func TestStageOrderSubmissionFailureReachesRejected(t *testing.T) {
	om := newTestOrderManager(t, &fakeExchange{submitErr: errors.New("exchange unavailable")})
	txn, err := om.StageOrder(context.Background(), "order-2", types.AddOrderRequest{Pair: "BTC_USDT"})
	if err == nil {
		t.Fatalf("expected an error from submission failure")
	}
	if txn.Status.Kind != StatusRejected {
		t.Fatalf("status = %v; want Rejected", txn.Status.Kind)
	}
}

func TestApplyOrderUpdateGuardedByIsBefore(t *testing.T) {
	om := newTestOrderManager(t, &fakeExchange{nextID: "exch-1"})
	ctx := context.Background()
	if _, err := om.StageOrder(ctx, "order-3", types.AddOrderRequest{Pair: "BTC_USDT"}); err != nil {
		t.Fatalf("stage order: %v", err)
	}

	filled := types.OrderDetail{ID: "order-3"}
	if err := om.ApplyOrderUpdate(ctx, "order-3", TransactionStatus{Kind: StatusFilled, Filled: &filled}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	got, _ := om.GetOrder("order-3")
	if got.Status.Kind != StatusFilled {
		t.Fatalf("status = %v; want Filled", got.Status.Kind)
	}

	// A stale New update arriving after Filled must not move the order backward.
	if err := om.ApplyOrderUpdate(ctx, "order-3", TransactionStatus{Kind: StatusNew}); err != nil {
		t.Fatalf("apply stale update: %v", err)
	}
	got, _ = om.GetOrder("order-3")
	if got.Status.Kind != StatusFilled {
		t.Fatalf("status after stale update = %v; want still Filled", got.Status.Kind)
	}
}

func TestReconcileLoadsCompactedViewAndQueriesOpenOrders(t *testing.T) {
	db := storage.NewMemoryStore()
	api := &fakeExchange{nextID: "exch-1"}
	om, err := NewOrderManager(db, types.ExchangeBinance, api, zap.NewNop())
	if err != nil {
		t.Fatalf("new order manager: %v", err)
	}
	defer om.Stop()

	ctx := context.Background()
	if _, err := om.StageOrder(ctx, "order-4", types.AddOrderRequest{Pair: "BTC_USDT"}); err != nil {
		t.Fatalf("stage order: %v", err)
	}

	// Simulate a restart: a fresh manager over the same storage table.
	om2, err := NewOrderManager(db, types.ExchangeBinance, api, zap.NewNop())
	if err != nil {
		t.Fatalf("new order manager: %v", err)
	}
	defer om2.Stop()

	if err := om2.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, ok := om2.GetOrder("order-4")
	if !ok || got.Status.Kind != StatusNew {
		t.Fatalf("GetOrder after reconcile = %v, %v; want New, true", got, ok)
	}
}
