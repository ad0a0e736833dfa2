package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// billState is the ledger-side record for one bill. Participant, amount,
// paid and refunded slices are parallel and never change length after
// creation.
type billState struct {
	creator      common.Address
	beneficiary  common.Address
	participants []common.Address
	amounts      []*big.Int
	paid         []bool
	refunded     []bool
	paidCount    int
	totalAmount  *big.Int
	held         *big.Int
	deadline     time.Time
	settled      bool
	cancelled    bool
}

func (b *billState) indexOf(addr common.Address) int {
	for i, p := range b.participants {
		if p == addr {
			return i
		}
	}
	return -1
}

// MemLedger is the authoritative escrow state machine backed by process
// memory. A single mutex serializes every call, so each operation checks and
// transitions bill state atomically: the final payment and a concurrent
// cancel can never both win.
//
// It doubles as the test and local-dev stand-in for the chain-backed ledger,
// so transaction hashes are fabricated deterministically from the operation
// payload.
type MemLedger struct {
	mu      sync.Mutex
	bills   map[BillID]*billState
	payouts map[common.Address]*big.Int
	subs    map[int]chan Event
	nextSub int
	nonce   uint64

	window time.Duration
	now    func() time.Time
}

// NewMemLedger builds a ledger whose bills expire window after creation.
func NewMemLedger(window time.Duration) *MemLedger {
	return &MemLedger{
		bills:   make(map[BillID]*billState),
		payouts: make(map[common.Address]*big.Int),
		subs:    make(map[int]chan Event),
		window:  window,
		now:     time.Now,
	}
}

// SetClock overrides the ledger's time source. Tests use it to cross the
// payment deadline without sleeping.
func (l *MemLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Subscribe returns a channel of ledger events and a cancel func. Events are
// dropped for subscribers that fall behind, so a stalled consumer cannot
// block a state transition.
func (l *MemLedger) Subscribe(buffer int) (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, buffer)
	l.subs[id] = ch
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
}

// emit requires l.mu held.
func (l *MemLedger) emit(ev Event) {
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// credit requires l.mu held.
func (l *MemLedger) credit(addr common.Address, amount *big.Int) {
	total, ok := l.payouts[addr]
	if !ok {
		total = new(big.Int)
		l.payouts[addr] = total
	}
	total.Add(total, amount)
}

// receipt requires l.mu held.
func (l *MemLedger) receipt(op string, id BillID) *Receipt {
	l.nonce++
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%x:%d", op, id, l.nonce))
	return &Receipt{TxHash: "0x" + hex.EncodeToString(sum[:])}
}

// PaidOut returns the total amount transferred to addr across settlements
// and refunds. Read-side helper for balance-conservation checks.
func (l *MemLedger) PaidOut(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if total, ok := l.payouts[addr]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

func (l *MemLedger) CreateBill(ctx context.Context, opts TxOpts, id BillID, participants []common.Address, amounts []*big.Int) (*Receipt, error) {
	return l.CreateBillFor(ctx, opts, id, common.Address{}, participants, amounts)
}

func (l *MemLedger) CreateBillFor(_ context.Context, opts TxOpts, id BillID, beneficiary common.Address, participants []common.Address, amounts []*big.Int) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.bills[id]; exists {
		return nil, ErrBillExists
	}
	if len(participants) == 0 || len(participants) != len(amounts) {
		return nil, &Error{Code: CodeInvalidFunding, Raw: "participants and amounts must be non-empty and parallel"}
	}
	seen := make(map[common.Address]bool, len(participants))
	total := new(big.Int)
	for i, p := range participants {
		if seen[p] {
			return nil, &Error{Code: CodeInvalidFunding, Raw: "duplicate participant " + p.Hex()}
		}
		seen[p] = true
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			return nil, &Error{Code: CodeInvalidFunding, Raw: "amount must be positive for " + p.Hex()}
		}
		total.Add(total, amounts[i])
	}

	if beneficiary == (common.Address{}) {
		beneficiary = opts.From
	}

	state := &billState{
		creator:      opts.From,
		beneficiary:  beneficiary,
		participants: append([]common.Address(nil), participants...),
		amounts:      make([]*big.Int, len(amounts)),
		paid:         make([]bool, len(participants)),
		refunded:     make([]bool, len(participants)),
		totalAmount:  total,
		held:         new(big.Int),
		deadline:     l.now().Add(l.window),
	}
	for i, a := range amounts {
		state.amounts[i] = new(big.Int).Set(a)
	}
	l.bills[id] = state

	l.emit(Event{Kind: EventBillCreated, BillID: id, Participant: opts.From, Amount: new(big.Int).Set(total)})
	return l.receipt("create", id), nil
}

func (l *MemLedger) PayShare(_ context.Context, opts TxOpts, id BillID) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	if bill.settled || bill.cancelled {
		return nil, ErrBillClosed
	}
	idx := bill.indexOf(opts.From)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if bill.paid[idx] {
		return nil, ErrAlreadyPaid
	}
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Cmp(bill.amounts[idx]) != 0 {
		return nil, IncorrectAmount(bill.amounts[idx], value)
	}

	bill.paid[idx] = true
	bill.paidCount++
	bill.held.Add(bill.held, value)
	l.emit(Event{Kind: EventPaymentReceived, BillID: id, Participant: opts.From, Amount: new(big.Int).Set(value)})

	// Final payment settles in the same atomic step.
	if bill.paidCount == len(bill.participants) {
		l.credit(bill.beneficiary, bill.totalAmount)
		bill.held.Sub(bill.held, bill.totalAmount)
		bill.settled = true
		l.emit(Event{Kind: EventBillSettled, BillID: id, Amount: new(big.Int).Set(bill.totalAmount)})
	}

	return l.receipt("pay", id), nil
}

func (l *MemLedger) CancelAndRefund(_ context.Context, opts TxOpts, id BillID) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	if bill.settled || bill.cancelled {
		return nil, ErrBillClosed
	}
	if opts.From != bill.creator {
		return nil, ErrNotCreator
	}

	bill.cancelled = true
	l.emit(Event{Kind: EventBillCancelled, BillID: id})
	return l.receipt("cancel", id), nil
}

func (l *MemLedger) RefundParticipant(_ context.Context, _ TxOpts, id BillID, participant common.Address) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	if !bill.cancelled {
		return nil, ErrNotRefundable
	}
	idx := bill.indexOf(participant)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if !bill.paid[idx] {
		return nil, ErrNotRefundable
	}
	if bill.refunded[idx] {
		return nil, ErrAlreadyRefunded
	}

	amount := bill.amounts[idx]
	bill.refunded[idx] = true
	bill.held.Sub(bill.held, amount)
	l.credit(participant, amount)
	l.emit(Event{Kind: EventRefundIssued, BillID: id, Participant: participant, Amount: new(big.Int).Set(amount)})
	return l.receipt("refund", id), nil
}

func (l *MemLedger) PartialSettle(_ context.Context, opts TxOpts, id BillID) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	if bill.settled || bill.cancelled {
		return nil, ErrBillClosed
	}
	if opts.From != bill.creator {
		return nil, ErrNotCreator
	}
	if bill.paidCount == 0 {
		return nil, ErrNothingToSettle
	}

	collected := new(big.Int).Set(bill.held)
	l.credit(bill.beneficiary, collected)
	bill.held.SetInt64(0)
	bill.settled = true
	l.emit(Event{Kind: EventPartialSettled, BillID: id, Amount: collected})
	return l.receipt("partial-settle", id), nil
}

func (l *MemLedger) AutoRefundIfExpired(_ context.Context, _ TxOpts, id BillID) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	if bill.settled || bill.cancelled {
		return nil, ErrBillClosed
	}
	if !l.now().After(bill.deadline) {
		return nil, ErrDeadlineNotReached
	}

	bill.cancelled = true
	l.emit(Event{Kind: EventBillCancelled, BillID: id})
	return l.receipt("auto-refund", id), nil
}

func (l *MemLedger) GetBillInfo(_ context.Context, id BillID) (BillInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return BillInfo{}, ErrBillNotFound
	}
	return BillInfo{
		Creator:          bill.creator,
		Beneficiary:      bill.beneficiary,
		TotalAmount:      new(big.Int).Set(bill.totalAmount),
		ParticipantCount: len(bill.participants),
		PaidCount:        bill.paidCount,
		Settled:          bill.settled,
		Cancelled:        bill.cancelled,
		Deadline:         bill.deadline,
	}, nil
}

func (l *MemLedger) HasPaid(_ context.Context, id BillID, participant common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return false, ErrBillNotFound
	}
	idx := bill.indexOf(participant)
	if idx < 0 {
		return false, nil
	}
	return bill.paid[idx], nil
}

func (l *MemLedger) GetShare(_ context.Context, id BillID, participant common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	idx := bill.indexOf(participant)
	if idx < 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bill.amounts[idx]), nil
}

func (l *MemLedger) CanRefund(_ context.Context, id BillID, participant common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return false, ErrBillNotFound
	}
	idx := bill.indexOf(participant)
	if idx < 0 {
		return false, nil
	}
	return bill.cancelled && bill.paid[idx] && !bill.refunded[idx], nil
}

func (l *MemLedger) GetPaidAmount(_ context.Context, id BillID, participant common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bill, ok := l.bills[id]
	if !ok {
		return nil, ErrBillNotFound
	}
	idx := bill.indexOf(participant)
	if idx < 0 || !bill.paid[idx] {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bill.amounts[idx]), nil
}

// WaitConfirmed is immediate for the in-memory ledger: every mutation is
// durable as soon as the call returns.
func (l *MemLedger) WaitConfirmed(_ context.Context, _ *Receipt) error {
	return nil
}

func (l *MemLedger) Ping(_ context.Context) error {
	return nil
}

var _ Ledger = (*MemLedger)(nil)
