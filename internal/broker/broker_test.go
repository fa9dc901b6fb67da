package broker

import (
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func testEnvelope(exchange types.Exchange, pair types.Pair) types.MarketEventEnvelope {
	return types.MarketEventEnvelope{
		Exchange: exchange,
		Pair:     pair,
		Event:    types.MarketEvent{Kind: types.MarketEventTrade, Trade: &types.TradeEvent{Pair: pair}},
	}
}

func TestBroadcastDeliversInRegistrationOrder(t *testing.T) {
	mb := NewMarketBroker(zap.NewNop())
	subject := types.Subject{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Channel: types.ChannelTrades}

	var order []int
	mb.Register(subject, RecipientFunc(func(env types.MarketEventEnvelope) { order = append(order, 1) }))
	mb.Register(subject, RecipientFunc(func(env types.MarketEventEnvelope) { order = append(order, 2) }))

	mb.Broadcast(testEnvelope(types.ExchangeBinance, "BTC_USDT"))

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("delivery order = %v; want [1 2]", order)
	}
}

func TestBroadcastToUnregisteredSubjectIsSilentDrop(t *testing.T) {
	mb := NewMarketBroker(zap.NewNop())
	// No panic, no registered recipients.
	mb.Broadcast(testEnvelope(types.ExchangeBinance, "ETH_USDT"))
}

func TestBroadcastContinuesPastDeadRecipient(t *testing.T) {
	mb := NewMarketBroker(zap.NewNop())
	subject := types.Subject{Exchange: types.ExchangeKraken, Pair: "SOL_USDT", Channel: types.ChannelTrades}

	bounded, ch := NewBoundedRecipient(0) // zero capacity: every send fails
	delivered := false

	mb.Register(subject, bounded)
	mb.Register(subject, RecipientFunc(func(env types.MarketEventEnvelope) { delivered = true }))

	mb.Broadcast(testEnvelope(types.ExchangeKraken, "SOL_USDT"))

	if !delivered {
		t.Fatalf("expected second recipient to still receive the envelope after the first failed")
	}
	select {
	case <-ch:
		t.Fatalf("expected zero-capacity bounded recipient to drop the send")
	default:
	}
}

func TestSubjectsSnapshot(t *testing.T) {
	mb := NewMarketBroker(zap.NewNop())
	s1 := types.Subject{Exchange: types.ExchangeBinance, Pair: "BTC_USDT", Channel: types.ChannelTrades}
	s2 := types.Subject{Exchange: types.ExchangeBinance, Pair: "ETH_USDT", Channel: types.ChannelOrderbooks}

	mb.Register(s1, RecipientFunc(func(types.MarketEventEnvelope) {}))
	mb.Register(s2, RecipientFunc(func(types.MarketEventEnvelope) {}))

	got := mb.Subjects()
	if len(got) != 2 {
		t.Fatalf("subjects = %v; want 2 entries", got)
	}
}
