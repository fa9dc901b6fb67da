package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// PairRegistry maps (exchange, pair) to the exchange's native symbol and
// rounds quantities/prices to that symbol's lot size and tick size.
// Every externally derived symbol is normalized through this capability
// before use; an unknown pair is a fatal configuration error scoped to
// the affected subscription, not the whole process.
type PairRegistry interface {
	// Resolve reports whether (exchange, pair) is a known tradable
	// symbol.
	Resolve(exchange types.Exchange, pair types.Pair) bool
	// RoundQty rounds qty down to the symbol's lot size.
	RoundQty(exchange types.Exchange, pair types.Pair, qty decimal.Decimal) decimal.Decimal
	// RoundPrice rounds price to the symbol's tick size.
	RoundPrice(exchange types.Exchange, pair types.Pair, price decimal.Decimal) decimal.Decimal
}
