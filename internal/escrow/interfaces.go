package escrow

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxOpts carries the sender identity and attached value for a mutating
// ledger call. The in-memory ledger uses From directly; the chain-backed
// ledger signs with its configured key and only honors Value.
type TxOpts struct {
	From  common.Address
	Value *big.Int
}

// Receipt references a submitted ledger transaction. Submission success does
// not imply durability: callers must WaitConfirmed before treating the
// operation as final.
type Receipt struct {
	TxHash string
}

// BillInfo is the read-side view of one escrow bill.
type BillInfo struct {
	Creator          common.Address
	Beneficiary      common.Address
	TotalAmount      *big.Int
	ParticipantCount int
	PaidCount        int
	Settled          bool
	Cancelled        bool
	Deadline         time.Time
}

// Terminal reports whether the bill can change no further.
func (b BillInfo) Terminal() bool {
	return b.Settled || b.Cancelled
}

// EventKind names the ledger event types.
type EventKind string

const (
	EventBillCreated     EventKind = "BillCreated"
	EventPaymentReceived EventKind = "PaymentReceived"
	EventBillSettled     EventKind = "BillSettled"
	EventBillCancelled   EventKind = "BillCancelled"
	EventPartialSettled  EventKind = "PartialSettlement"
	EventRefundIssued    EventKind = "RefundIssued"
)

// Event is one ledger state change notification.
type Event struct {
	Kind        EventKind
	BillID      BillID
	Participant common.Address
	Amount      *big.Int
}

// Ledger is the authoritative escrow state machine. Implementations must
// serialize state transitions per bill: each call checks and transitions
// state as a single atomic step, so two callers can never observe a
// half-updated bill.
type Ledger interface {
	// CreateBill registers a new bill with parallel participant and amount
	// lists. The sender becomes both creator and beneficiary. The payment
	// deadline is creation time plus the ledger's escrow window.
	CreateBill(ctx context.Context, opts TxOpts, id BillID, participants []common.Address, amounts []*big.Int) (*Receipt, error)

	// CreateBillFor is CreateBill with an explicit beneficiary override.
	// The zero address means the creator is the beneficiary.
	CreateBillFor(ctx context.Context, opts TxOpts, id BillID, beneficiary common.Address, participants []common.Address, amounts []*big.Int) (*Receipt, error)

	// PayShare pays the sender's exact required amount (opts.Value). When the
	// final participant pays, the bill settles to the beneficiary atomically.
	PayShare(ctx context.Context, opts TxOpts, id BillID) (*Receipt, error)

	// CancelAndRefund closes an open bill (creator only) and makes each paid
	// participant refund-eligible. Refunds are pull-based.
	CancelAndRefund(ctx context.Context, opts TxOpts, id BillID) (*Receipt, error)

	// RefundParticipant returns a paid participant's amount after
	// cancellation. Each participant can claim exactly once.
	RefundParticipant(ctx context.Context, opts TxOpts, id BillID, participant common.Address) (*Receipt, error)

	// PartialSettle forwards the amounts collected so far to the beneficiary
	// and closes the bill (creator only, at least one payment in).
	PartialSettle(ctx context.Context, opts TxOpts, id BillID) (*Receipt, error)

	// AutoRefundIfExpired has the same effect as CancelAndRefund but is
	// callable by anyone once the deadline has passed.
	AutoRefundIfExpired(ctx context.Context, opts TxOpts, id BillID) (*Receipt, error)

	GetBillInfo(ctx context.Context, id BillID) (BillInfo, error)
	HasPaid(ctx context.Context, id BillID, participant common.Address) (bool, error)
	GetShare(ctx context.Context, id BillID, participant common.Address) (*big.Int, error)
	CanRefund(ctx context.Context, id BillID, participant common.Address) (bool, error)
	GetPaidAmount(ctx context.Context, id BillID, participant common.Address) (*big.Int, error)

	// WaitConfirmed blocks until the referenced transaction is durable or the
	// context expires.
	WaitConfirmed(ctx context.Context, receipt *Receipt) error
}

// HealthChecker is implemented by ledgers that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
