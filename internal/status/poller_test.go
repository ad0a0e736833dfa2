package status

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitrails/internal/escrow"
)

func TestPollerStopsAtTerminalState(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	payer := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	id := escrow.DeriveBillID("poll-settle")
	ctx := context.Background()

	if _, err := ledger.CreateBill(ctx, escrow.TxOpts{From: payer}, id,
		[]common.Address{payer}, []*big.Int{big.NewInt(5)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snaps := make(chan Snapshot, 16)
	poller := NewPoller(ledger, id, 5*time.Millisecond, func(s Snapshot) { snaps <- s })

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	// First observation is the open bill.
	select {
	case s := <-snaps:
		if s.Info.Terminal() {
			t.Fatal("first snapshot must be of the open bill")
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot observed")
	}

	// The single payment settles the bill; the poller must observe it and
	// return on its own.
	if _, err := ledger.PayShare(ctx, escrow.TxOpts{From: payer, Value: big.NewInt(5)}, id); err != nil {
		t.Fatalf("pay: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after settlement")
	}

	var last Snapshot
	for {
		select {
		case s := <-snaps:
			last = s
			continue
		default:
		}
		break
	}
	if !last.Info.Settled || !last.IsComplete {
		t.Fatalf("final snapshot %+v, want settled and complete", last)
	}
}

func TestPollerHonorsCancellation(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	id := escrow.DeriveBillID("poll-cancel")
	payer := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := ledger.CreateBill(ctx, escrow.TxOpts{From: payer}, id,
		[]common.Address{payer}, []*big.Int{big.NewInt(5)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	poller := NewPoller(ledger, id, 5*time.Millisecond, nil)
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestPollerSurvivesReadErrors(t *testing.T) {
	ledger := escrow.NewMemLedger(time.Hour)
	// Bill never created: every poll fails. The poller must keep going until
	// cancelled rather than give up on a transient read failure.
	poller := NewPoller(ledger, escrow.DeriveBillID("missing"), 5*time.Millisecond, func(Snapshot) {
		t.Error("no snapshot expected for a missing bill")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := poller.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run = %v, want deadline exceeded", err)
	}
}
