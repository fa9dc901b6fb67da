// Package types provides shared type definitions for the trading engine.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange names a trading venue.
type Exchange string

const (
	ExchangeBinance  Exchange = "binance"
	ExchangeKraken   Exchange = "kraken"
	ExchangeBitstamp Exchange = "bitstamp"
	ExchangeBittrex  Exchange = "bittrex"
	ExchangeCoinbase Exchange = "coinbase"
)

// Pair is a normalized BASE_QUOTE identifier. The exchange-native symbol is
// reached only through an injected pair registry (see pkg/pairs).
type Pair string

// NewPair validates and constructs a Pair from "BASE_QUOTE".
func NewPair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid pair %q: want BASE_QUOTE", s)
	}
	return Pair(s), nil
}

// Base returns the base asset of the pair.
func (p Pair) Base() string { return strings.Split(string(p), "_")[0] }

// Quote returns the quote asset of the pair.
func (p Pair) Quote() string { return strings.Split(string(p), "_")[1] }

// Channel is the external name of a broker subject class.
type Channel string

const (
	ChannelOrderbooks Channel = "orderbooks"
	ChannelTrades     Channel = "trades"
	ChannelCandles    Channel = "candles"
	ChannelOrders     Channel = "orders"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// PositionKind is long or short.
type PositionKind string

const (
	PositionKindLong  PositionKind = "long"
	PositionKindShort PositionKind = "short"
)

// AssetType names the account/margin class an order operates under.
type AssetType struct {
	Kind            string // "spot", "margin", "isolated_margin"
	IsolatedForPair Pair   // only set when Kind == "isolated_margin"
}

// IsMargin reports whether this asset type borrows funds.
func (a AssetType) IsMargin() bool {
	return a.Kind == "margin" || a.Kind == "isolated_margin"
}

var SpotAsset = AssetType{Kind: "spot"}
var MarginAsset = AssetType{Kind: "margin"}

// OrderBookLevel is a single price/quantity level.
type OrderBookLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Orderbook is a point-in-time snapshot of both sides of a book.
type Orderbook struct {
	Pair        Pair
	TimestampMs int64
	Asks        []OrderBookLevel
	Bids        []OrderBookLevel
}

// TradeEvent is a single executed trade observed on the market.
type TradeEvent struct {
	Pair        Pair
	TimestampMs int64
	Price       decimal.Decimal
	Qty         decimal.Decimal
	Side        OrderSide
}

// CandleTick is a (possibly still-forming) OHLC candle.
type CandleTick struct {
	Pair      Pair
	StartMs   int64
	EndMs     int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	IsFinal   bool
}

// MarketEventKind discriminates the MarketEvent tagged union.
type MarketEventKind string

const (
	MarketEventOrderbook MarketEventKind = "orderbook"
	MarketEventTrade     MarketEventKind = "trade"
	MarketEventCandle    MarketEventKind = "candle"
	MarketEventNoop      MarketEventKind = "noop"
)

// MarketEvent is a tagged union over the market-data variants the broker
// routes. Exactly one payload field is populated, selected by Kind.
type MarketEvent struct {
	Kind      MarketEventKind
	Orderbook *Orderbook
	Trade     *TradeEvent
	Candle    *CandleTick
}

// Pair returns the event's pair, or "" for Noop.
func (e MarketEvent) EventPair() Pair {
	switch e.Kind {
	case MarketEventOrderbook:
		return e.Orderbook.Pair
	case MarketEventTrade:
		return e.Trade.Pair
	case MarketEventCandle:
		return e.Candle.Pair
	default:
		return ""
	}
}

// MarketEventEnvelope wraps a MarketEvent with routing/trace metadata.
type MarketEventEnvelope struct {
	Exchange Exchange
	Pair     Pair
	Ts       time.Time
	TraceID  string
	Event    MarketEvent
}

// Subject is the broker routing key derived from an envelope.
type Subject struct {
	Exchange Exchange
	Pair     Pair
	Channel  Channel
}

// ChannelForEvent maps a market event kind to its broker channel.
func ChannelForEvent(kind MarketEventKind) Channel {
	switch kind {
	case MarketEventOrderbook:
		return ChannelOrderbooks
	case MarketEventTrade:
		return ChannelTrades
	case MarketEventCandle:
		return ChannelCandles
	default:
		return ChannelOrderbooks
	}
}

// SubjectOf derives the routing subject for an envelope.
func SubjectOf(env MarketEventEnvelope) Subject {
	return Subject{Exchange: env.Exchange, Pair: env.Pair, Channel: ChannelForEvent(env.Event.Kind)}
}

// BookPosition is a derived, lossy summary of an orderbook: a volume-weighted
// mid across all levels, best bid/ask, and top-of-book sizes.
type BookPosition struct {
	Pair      Pair
	Mid       decimal.Decimal
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidQty    decimal.Decimal
	AskQty    decimal.Decimal
	EventTime time.Time
	TraceID   string
}

// AccountEventKind discriminates the AccountEvent tagged union.
type AccountEventKind string

const (
	AccountEventBalanceUpdate         AccountEventKind = "balance_update"
	AccountEventAccountPositionUpdate AccountEventKind = "account_position_update"
	AccountEventOrderUpdate           AccountEventKind = "order_update"
)

// BalanceUpdate reports a single-asset balance delta.
type BalanceUpdate struct {
	Asset     string
	Delta     decimal.Decimal
	EventTime time.Time
}

// AssetBalance is a free/locked balance pair for one asset.
type AssetBalance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// AccountPositionUpdate reports a full balance snapshot.
type AccountPositionUpdate struct {
	Balances   map[string]AssetBalance
	UpdateTime time.Time
}

// OrderUpdate reports an exchange-side order-lifecycle change.
type OrderUpdate struct {
	OrderID   string
	Status    string
	Reason    string
	EventTime time.Time
}

// AccountEvent is a tagged union over account-stream variants.
type AccountEvent struct {
	Kind            AccountEventKind
	BalanceUpdate   *BalanceUpdate
	PositionUpdate  *AccountPositionUpdate
	OrderUpdate     *OrderUpdate
}

// AccountEventEnvelope wraps an AccountEvent with routing metadata.
type AccountEventEnvelope struct {
	Exchange    Exchange
	AccountType string
	Event       AccountEvent
}

// Fill is a single exchange-reported execution against an order.
type Fill struct {
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// OrderType is limit or market.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// SideEffect names the margin borrow/repay behavior attached to an order.
type SideEffect string

const (
	SideEffectNone         SideEffect = ""
	SideEffectMarginBuy    SideEffect = "margin_buy"
	SideEffectAutoRepay    SideEffect = "auto_repay"
)

// OrderDetail is the order manager's domain record for one exchange order.
type OrderDetail struct {
	ID               string
	Pair             Pair
	BaseAsset        string
	QuoteAsset       string
	Side             OrderSide
	OrderType        OrderType
	AssetType        AssetType
	Price            decimal.Decimal
	BaseQty          decimal.Decimal
	QuoteQty         decimal.Decimal
	RealizedBaseQty  decimal.Decimal
	RealizedQuoteQty decimal.Decimal
	Fills            []Fill
	BorrowedAmount   *decimal.Decimal
	SideEffect       SideEffect
	OpenAt           *time.Time
	CloseAt          *time.Time
}

// SignalKind discriminates whether a trade signal opens a new position or
// closes an existing one.
type SignalKind string

const (
	SignalOpen  SignalKind = "open"
	SignalClose SignalKind = "close"
)

// TradeSignal is what a strategy emits from eval(); the portfolio's
// maybe_convert turns zero or more of these into AddOrderRequests.
type TradeSignal struct {
	Exchange  Exchange
	Pair      Pair
	Kind      SignalKind
	Side      OrderSide
	AssetType AssetType
	Price     decimal.Decimal
	Qty       *decimal.Decimal // nil means "size from portfolio value"
	Reason    string
}

// AddOrderRequest is what the portfolio hands to the order manager.
type AddOrderRequest struct {
	Exchange  Exchange
	Pair      Pair
	Side      OrderSide
	OrderType OrderType
	AssetType AssetType
	Price     decimal.Decimal
	BaseQty   decimal.Decimal
	SideEffect SideEffect
	BorrowedAmount *decimal.Decimal
	SignalID  string
}

// ModelValue is a single persisted model output with its event time.
type ModelValue struct {
	Value decimal.Decimal
	At    time.Time
}

// TimedValue pairs a nanosecond timestamp with a stored value.
type TimedValue[T any] struct {
	Ts    int64
	Value T
}
