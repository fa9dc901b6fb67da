package types

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingAsks is returned when an orderbook's ask side is empty.
var ErrMissingAsks = errors.New("types: orderbook has no asks")

// ErrMissingBids is returned when an orderbook's bid side is empty.
var ErrMissingBids = errors.New("types: orderbook has no bids")

// BookPositionFromOrderbook derives a BookPosition from a full orderbook
// snapshot. Mid is the notional-weighted average price across every level
// on both sides (not merely the top-of-book midpoint): it sums price*qty
// over every ask and bid level and divides by the summed quantity.
func BookPositionFromOrderbook(ob Orderbook, eventTime time.Time, traceID string) (BookPosition, error) {
	if len(ob.Asks) == 0 {
		return BookPosition{}, ErrMissingAsks
	}
	if len(ob.Bids) == 0 {
		return BookPosition{}, ErrMissingBids
	}

	notional := decimal.Zero
	qtySum := decimal.Zero
	for _, lvl := range ob.Asks {
		notional = notional.Add(lvl.Price.Mul(lvl.Qty))
		qtySum = qtySum.Add(lvl.Qty)
	}
	for _, lvl := range ob.Bids {
		notional = notional.Add(lvl.Price.Mul(lvl.Qty))
		qtySum = qtySum.Add(lvl.Qty)
	}

	mid := decimal.Zero
	if !qtySum.IsZero() {
		mid = notional.Div(qtySum)
	}

	return BookPosition{
		Pair:      ob.Pair,
		Mid:       mid,
		BestBid:   ob.Bids[0].Price,
		BestAsk:   ob.Asks[0].Price,
		BidQty:    ob.Bids[0].Qty,
		AskQty:    ob.Asks[0].Qty,
		EventTime: eventTime,
		TraceID:   traceID,
	}, nil
}
