// Package portfolio holds one ledger per strategy: cash, open positions
// keyed by (exchange, pair), a history of closed positions, per-pair
// locks, and the conversion of strategy signals into order requests.
package portfolio

import "errors"

var (
	ErrUnknownSymbol         = errors.New("portfolio: unknown symbol")
	ErrPositionConflict      = errors.New("portfolio: position already open for this pair")
	ErrInsufficientFunds     = errors.New("portfolio: insufficient funds")
	ErrInterestRateUnavailable = errors.New("portfolio: interest rate unavailable")
	ErrRiskRejection         = errors.New("portfolio: risk rejection")
	ErrLocked                = errors.New("portfolio: pair is locked by an in-flight order")
)
