package coordinator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitrails/internal/escrow"
	"splitrails/internal/models"
)

const testChainID = 31337

var (
	creatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	aliceAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bobAddr     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fixedRate float64

func (r fixedRate) GetRate(context.Context) (float64, error) { return float64(r), nil }

type failingRate struct{}

func (failingRate) GetRate(context.Context) (float64, error) {
	return 0, errors.New("all price sources unavailable")
}

func testBill() (*models.Bill, []models.ParticipantShare) {
	bill := &models.Bill{
		ID:             "dinner-42",
		CreatorAddress: creatorAddr.Hex(),
		Participants: []models.Participant{
			{ID: "p1", Address: aliceAddr.Hex()},
			{ID: "p2", Address: bobAddr.Hex()},
		},
	}
	shares := []models.ParticipantShare{
		{ParticipantID: "p1", Amount: 30},
		{ParticipantID: "p2", Amount: 70},
	}
	return bill, shares
}

func coordFor(ledger escrow.Ledger, addr common.Address) *Coordinator {
	wallet := &StaticWallet{Addr: addr, Chain: testChainID}
	return New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID})
}

func TestCreateAndPayFlow(t *testing.T) {
	ledger := escrow.NewMemLedger(7 * 24 * time.Hour)
	ctx := context.Background()
	bill, shares := testBill()

	id, receipt, err := coordFor(ledger, creatorAddr).CreateEscrowBill(ctx, bill, shares)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if receipt == nil || receipt.TxHash == "" {
		t.Fatal("create must return a transaction reference")
	}
	if id != escrow.DeriveBillID(bill.ID) {
		t.Fatalf("ledger ID %s not derived from bill ID", id.Hex())
	}

	for _, addr := range []common.Address{aliceAddr, bobAddr} {
		share, err := ledger.GetShare(ctx, id, addr)
		if err != nil {
			t.Fatalf("get share: %v", err)
		}
		if _, err := coordFor(ledger, addr).PayEscrowShare(ctx, id, share); err != nil {
			t.Fatalf("pay %s: %v", addr, err)
		}
	}

	info, err := ledger.GetBillInfo(ctx, id)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !info.Settled {
		t.Fatal("bill must settle after both payments")
	}
}

func TestCreateRequiresWallet(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	bill, shares := testBill()

	c := coordFor(ledger, common.Address{})
	_, _, err := c.CreateEscrowBill(context.Background(), bill, shares)
	if !errors.Is(err, escrow.ErrWalletNotConnected) {
		t.Fatalf("err = %v, want WalletNotConnected", err)
	}
}

func TestNetworkMismatch(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	bill, shares := testBill()

	wallet := &StaticWallet{Addr: creatorAddr, Chain: testChainID + 1}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID})
	_, _, err := c.CreateEscrowBill(context.Background(), bill, shares)
	if !errors.Is(err, escrow.ErrNetworkMismatch) {
		t.Fatalf("err = %v, want NetworkMismatch", err)
	}
}

// switchableWallet starts on the wrong chain and honors one switch request.
type switchableWallet struct {
	StaticWallet
}

func (w *switchableWallet) SwitchChain(_ context.Context, chainID int64) error {
	w.Chain = chainID
	return nil
}

func TestNetworkSwitchRecovers(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	bill, shares := testBill()

	wallet := &switchableWallet{StaticWallet{Addr: creatorAddr, Chain: 1}}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID})
	if _, _, err := c.CreateEscrowBill(context.Background(), bill, shares); err != nil {
		t.Fatalf("create after switch: %v", err)
	}
	if wallet.Chain != testChainID {
		t.Fatalf("wallet chain = %d, want %d", wallet.Chain, testChainID)
	}
}

func TestPayShareInsufficientFunds(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	ctx := context.Background()
	bill, shares := testBill()

	id, _, err := coordFor(ledger, creatorAddr).CreateEscrowBill(ctx, bill, shares)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	share, _ := ledger.GetShare(ctx, id, aliceAddr)

	wallet := &StaticWallet{Addr: aliceAddr, Chain: testChainID, Funds: big.NewInt(1)}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID})
	if _, err := c.PayEscrowShare(ctx, id, share); !errors.Is(err, escrow.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want InsufficientFunds", err)
	}

	if paid, _ := ledger.HasPaid(ctx, id, aliceAddr); paid {
		t.Fatal("rejected payment must not reach the ledger")
	}
}

func TestCreateRateUnavailable(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	bill, shares := testBill()

	wallet := &StaticWallet{Addr: creatorAddr, Chain: testChainID}
	c := New(ledger, wallet, failingRate{}, Config{ChainID: testChainID})
	_, _, err := c.CreateEscrowBill(context.Background(), bill, shares)
	if escrow.CodeOf(err) != escrow.CodeUnrecognized {
		t.Fatalf("err = %v, want Unrecognized classification", err)
	}
}

func TestCancelRefundPassthrough(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	ctx := context.Background()
	bill, shares := testBill()

	creatorCoord := coordFor(ledger, creatorAddr)
	id, _, err := creatorCoord.CreateEscrowBill(ctx, bill, shares)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	share, _ := ledger.GetShare(ctx, id, aliceAddr)
	if _, err := coordFor(ledger, aliceAddr).PayEscrowShare(ctx, id, share); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := coordFor(ledger, aliceAddr).CancelAndRefund(ctx, id); !errors.Is(err, escrow.ErrNotCreator) {
		t.Fatalf("non-creator cancel = %v, want NotCreator", err)
	}
	if _, err := creatorCoord.CancelAndRefund(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := creatorCoord.RefundParticipant(ctx, id, aliceAddr); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := creatorCoord.RefundParticipant(ctx, id, aliceAddr); !errors.Is(err, escrow.ErrAlreadyRefunded) {
		t.Fatalf("second refund = %v, want AlreadyRefunded", err)
	}
}

// slowLedger delays confirmation so the congestion advisory path fires.
type slowLedger struct {
	*escrow.MemLedger
	delay time.Duration
}

func (l *slowLedger) WaitConfirmed(ctx context.Context, _ *escrow.Receipt) error {
	select {
	case <-time.After(l.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSlowTransactionAdvisory(t *testing.T) {
	ledger := &slowLedger{MemLedger: escrow.NewMemLedger(time.Hour), delay: 60 * time.Millisecond}
	bill, shares := testBill()

	wallet := &StaticWallet{Addr: creatorAddr, Chain: testChainID}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID, SlowThreshold: 10 * time.Millisecond})

	advisories := make(chan Advisory, 1)
	c.OnAdvisory = func(a Advisory) { advisories <- a }

	if _, _, err := c.CreateEscrowBill(context.Background(), bill, shares); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case a := <-advisories:
		if a.TxHash == "" || a.Message == "" {
			t.Fatalf("advisory missing detail: %+v", a)
		}
	default:
		t.Fatal("expected a slow-transaction advisory")
	}
}

// Cancelling the caller's context after submission must not abandon the
// confirmation wait.
func TestConfirmationSurvivesCallerCancel(t *testing.T) {
	ledger := &slowLedger{MemLedger: escrow.NewMemLedger(time.Hour), delay: 30 * time.Millisecond}
	bill, shares := testBill()

	wallet := &StaticWallet{Addr: creatorAddr, Chain: testChainID}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	if _, _, err := c.CreateEscrowBill(ctx, bill, shares); err != nil {
		t.Fatalf("create with cancelled caller: %v", err)
	}
}

func TestConfirmTimeout(t *testing.T) {
	ledger := &slowLedger{MemLedger: escrow.NewMemLedger(time.Hour), delay: time.Second}
	bill, shares := testBill()

	wallet := &StaticWallet{Addr: creatorAddr, Chain: testChainID}
	c := New(ledger, wallet, fixedRate(2000), Config{ChainID: testChainID, ConfirmTimeout: 10 * time.Millisecond})

	_, receipt, err := c.CreateEscrowBill(context.Background(), bill, shares)
	if err == nil {
		t.Fatal("expected confirmation timeout")
	}
	if receipt == nil {
		t.Fatal("receipt must be returned even when confirmation times out")
	}
}
