// Package coordinator wraps ledger calls with wallet and network
// preconditions and translates every failure into a user-facing category.
// It holds no settlement state of its own; the ledger is authoritative.
package coordinator

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitrails/internal/escrow"
	"splitrails/internal/models"
)

// Wallet is the signer-side view the coordinator checks before submitting.
type Wallet interface {
	Connected() bool
	Address() common.Address
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, chainID int64) error
	Balance(ctx context.Context) (*big.Int, error)
}

// RateSource supplies the conversion rate at escrow-activation time.
type RateSource interface {
	GetRate(ctx context.Context) (float64, error)
}

// Advisory is a non-fatal notice surfaced mid-operation, e.g. a transaction
// that is slow to confirm but not failed.
type Advisory struct {
	TxHash  string
	Elapsed time.Duration
	Message string
}

// Config tunes the coordinator's confirmation behavior.
type Config struct {
	// ChainID is the network the escrow contract is deployed on.
	ChainID int64

	// SlowThreshold is how long a pending transaction waits before a
	// congestion advisory is raised. The operation keeps waiting.
	SlowThreshold time.Duration

	// ConfirmTimeout bounds the confirmation wait for a submitted
	// transaction. Zero means wait indefinitely.
	ConfirmTimeout time.Duration
}

// Coordinator orchestrates escrow operations for one wallet.
type Coordinator struct {
	ledger escrow.Ledger
	wallet Wallet
	rates  RateSource
	cfg    Config

	// OnAdvisory, when set, receives slow-transaction notices.
	OnAdvisory func(Advisory)
}

func New(ledger escrow.Ledger, wallet Wallet, rates RateSource, cfg Config) *Coordinator {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 60 * time.Second
	}
	return &Coordinator{ledger: ledger, wallet: wallet, rates: rates, cfg: cfg}
}

// ensureReady checks the wallet and network preconditions shared by every
// mutating operation. A wrong network gets one automatic switch attempt.
func (c *Coordinator) ensureReady(ctx context.Context) error {
	if !c.wallet.Connected() {
		return escrow.ErrWalletNotConnected
	}
	chainID, err := c.wallet.ChainID(ctx)
	if err != nil {
		return escrow.Classify(err)
	}
	if chainID == c.cfg.ChainID {
		return nil
	}
	if err := c.wallet.SwitchChain(ctx, c.cfg.ChainID); err != nil {
		slog.Warn("network switch failed", "have", chainID, "want", c.cfg.ChainID, "error", err)
		return escrow.ErrNetworkMismatch
	}
	return nil
}

// CreateEscrowBill fetches a fresh rate, prepares the funding data and
// registers the bill on the ledger. The returned ledger ID should be
// persisted alongside the off-chain bill.
func (c *Coordinator) CreateEscrowBill(ctx context.Context, bill *models.Bill, shares []models.ParticipantShare) (escrow.BillID, *escrow.Receipt, error) {
	if err := c.ensureReady(ctx); err != nil {
		return escrow.BillID{}, nil, err
	}

	rate, err := c.rates.GetRate(ctx)
	if err != nil {
		return escrow.BillID{}, nil, escrow.Classify(err)
	}

	funding, err := escrow.PrepareFunding(bill, shares, rate)
	if err != nil {
		return escrow.BillID{}, nil, err
	}

	var beneficiary common.Address
	if bill.BeneficiaryAddress != "" {
		beneficiary = common.HexToAddress(bill.BeneficiaryAddress)
	}

	id := escrow.DeriveBillID(bill.ID)
	opts := escrow.TxOpts{From: c.wallet.Address()}
	receipt, err := c.ledger.CreateBillFor(ctx, opts, id, beneficiary, funding.Participants, funding.Amounts)
	if err != nil {
		return escrow.BillID{}, nil, escrow.Classify(err)
	}
	if err := c.confirm(ctx, receipt); err != nil {
		return escrow.BillID{}, receipt, escrow.Classify(err)
	}
	slog.Info("escrow bill created", "bill", bill.ID, "escrow_id", id.Hex(), "total", funding.Total, "rate", rate)
	return id, receipt, nil
}

// PayEscrowShare pays the caller's exact required amount. The balance check
// is best-effort: the ledger remains authoritative.
func (c *Coordinator) PayEscrowShare(ctx context.Context, id escrow.BillID, amount *big.Int) (*escrow.Receipt, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	if balance, err := c.wallet.Balance(ctx); err == nil && balance != nil && balance.Cmp(amount) < 0 {
		return nil, escrow.ErrInsufficientFunds
	}

	opts := escrow.TxOpts{From: c.wallet.Address(), Value: amount}
	receipt, err := c.ledger.PayShare(ctx, opts, id)
	if err != nil {
		return nil, escrow.Classify(err)
	}
	if err := c.confirm(ctx, receipt); err != nil {
		return receipt, escrow.Classify(err)
	}
	return receipt, nil
}

func (c *Coordinator) CancelAndRefund(ctx context.Context, id escrow.BillID) (*escrow.Receipt, error) {
	return c.passthrough(ctx, func(opts escrow.TxOpts) (*escrow.Receipt, error) {
		return c.ledger.CancelAndRefund(ctx, opts, id)
	})
}

func (c *Coordinator) PartialSettle(ctx context.Context, id escrow.BillID) (*escrow.Receipt, error) {
	return c.passthrough(ctx, func(opts escrow.TxOpts) (*escrow.Receipt, error) {
		return c.ledger.PartialSettle(ctx, opts, id)
	})
}

func (c *Coordinator) AutoRefundIfExpired(ctx context.Context, id escrow.BillID) (*escrow.Receipt, error) {
	return c.passthrough(ctx, func(opts escrow.TxOpts) (*escrow.Receipt, error) {
		return c.ledger.AutoRefundIfExpired(ctx, opts, id)
	})
}

func (c *Coordinator) RefundParticipant(ctx context.Context, id escrow.BillID, participant common.Address) (*escrow.Receipt, error) {
	return c.passthrough(ctx, func(opts escrow.TxOpts) (*escrow.Receipt, error) {
		return c.ledger.RefundParticipant(ctx, opts, id, participant)
	})
}

func (c *Coordinator) passthrough(ctx context.Context, call func(escrow.TxOpts) (*escrow.Receipt, error)) (*escrow.Receipt, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	receipt, err := call(escrow.TxOpts{From: c.wallet.Address()})
	if err != nil {
		return nil, escrow.Classify(err)
	}
	if err := c.confirm(ctx, receipt); err != nil {
		return receipt, escrow.Classify(err)
	}
	return receipt, nil
}

// confirm waits for the submitted transaction to become durable. The wait is
// detached from the caller's cancellation: a submitted transaction runs to
// completion or failure on chain regardless of the initiating client, so
// abandoning the wait early would only lose the outcome. Past SlowThreshold
// a congestion advisory is raised without giving up.
func (c *Coordinator) confirm(ctx context.Context, receipt *escrow.Receipt) error {
	waitCtx := context.WithoutCancel(ctx)
	if c.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, c.cfg.ConfirmTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan struct{})
	if c.OnAdvisory != nil {
		timer := time.NewTimer(c.cfg.SlowThreshold)
		defer timer.Stop()
		go func() {
			select {
			case <-timer.C:
				c.OnAdvisory(Advisory{
					TxHash:  receipt.TxHash,
					Elapsed: time.Since(start),
					Message: "transaction is taking longer than usual; the network may be congested",
				})
			case <-done:
			}
		}()
	}
	err := c.ledger.WaitConfirmed(waitCtx, receipt)
	close(done)
	return err
}
