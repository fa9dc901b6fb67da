package execution

import "github.com/atlas-desktop/trading-engine/pkg/types"

// TransactionKind discriminates the variant of a TransactionStatus.
type TransactionKind int

const (
	StatusStaged TransactionKind = iota
	StatusNew
	StatusPartiallyFilled
	StatusFilled
	StatusRejected
)

// RejectionKind discriminates the variant of a Rejection.
type RejectionKind int

const (
	RejectBadRequest RejectionKind = iota
	RejectInsufficientFunds
	RejectTimeout
	RejectCancelled
	RejectInvalidPrice
	RejectOther
	RejectUnknown
)

// Rejection carries the terminal reason an order did not fill.
type Rejection struct {
	Kind    RejectionKind
	Message string // BadRequest/Other/Unknown payload
	Reason  string // Cancelled's optional reason; empty means none given
}

// RejectionFromExchangeStatus maps a raw exchange-reported terminal
// status into a Rejection, mirroring the exchange's own vocabulary of
// rejected/expired/canceled/pending-cancel.
func RejectionFromExchangeStatus(exchangeStatus string, reason string) Rejection {
	switch exchangeStatus {
	case "rejected":
		return Rejection{Kind: RejectOther, Message: reason}
	case "expired":
		return Rejection{Kind: RejectTimeout}
	case "canceled", "pending_cancel":
		return Rejection{Kind: RejectCancelled, Reason: reason}
	default:
		return Rejection{Kind: RejectUnknown}
	}
}

// OrderQuery is the staged request before it has been acknowledged by
// the exchange.
type OrderQuery struct {
	Request types.AddOrderRequest
}

// OrderInfo is the exchange's initial acknowledgement of a new order.
type OrderInfo struct {
	ID        string
	Timestamp int64
}

// TransactionStatus is a tagged union over the order lifecycle's five
// states. Exactly one of the payload fields is populated, selected by
// Kind.
type TransactionStatus struct {
	Kind            TransactionKind
	Staged          *OrderQuery
	New             *OrderInfo
	PartiallyFilled *types.OrderDetail
	Filled          *types.OrderDetail
	Rejected        *Rejection
}

// IsBefore implements the WAL's forward-only transition ordering.
// Discriminant equality always short-circuits to false: two records of
// the same kind are never ordered relative to each other by this
// relation (the WAL keeps the most recently-written one in that case,
// since compaction only calls IsBefore to break ties across kinds).
func (s TransactionStatus) IsBefore(other TransactionStatus) bool {
	if s.Kind == other.Kind {
		return false
	}
	switch s.Kind {
	case StatusStaged:
		return other.Kind == StatusNew || other.Kind == StatusPartiallyFilled ||
			other.Kind == StatusFilled || other.Kind == StatusRejected
	case StatusNew:
		return other.Kind == StatusPartiallyFilled || other.Kind == StatusFilled ||
			other.Kind == StatusRejected
	case StatusPartiallyFilled:
		return other.Kind == StatusFilled || other.Kind == StatusRejected
	case StatusFilled:
		return other.Kind == StatusRejected
	case StatusRejected:
		return false
	default:
		return false
	}
}

// Transaction is a WAL record: an order id paired with its status at
// the time the record was written.
type Transaction struct {
	ID     string
	Status TransactionStatus
}

func (t Transaction) IsBefore(other Transaction) bool {
	return t.Status.IsBefore(other.Status)
}

func (t Transaction) IsFilled() bool  { return t.Status.Kind == StatusFilled }
func (t Transaction) IsRejected() bool { return t.Status.Kind == StatusRejected }

func (t Transaction) IsBadRequest() bool {
	return t.Status.Kind == StatusRejected && t.Status.Rejected != nil && t.Status.Rejected.Kind == RejectBadRequest
}

func (t Transaction) IsCancelled() bool {
	return t.Status.Kind == StatusRejected && t.Status.Rejected != nil && t.Status.Rejected.Kind == RejectCancelled
}

// VariantEq reports whether two transactions share the same status
// kind, ignoring payload contents (a discriminant-only equality).
func (t Transaction) VariantEq(other Transaction) bool {
	return t.Status.Kind == other.Status.Kind
}
