package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"splitrails/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthLedger submits transactions to the deployed SplitEscrow contract.
type EthLedger struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	address   common.Address
	chainID   *big.Int
	transacts *bind.TransactOpts
}

type EthLedgerConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string

	// ExpectedChainID guards against submitting to the wrong network. Zero
	// disables the check.
	ExpectedChainID int64
}

func NewEthLedger(ctx context.Context, cfg EthLedgerConfig) (*EthLedger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("escrow contract address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for submitting escrow transactions")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.SplitEscrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	if cfg.ExpectedChainID != 0 && chainID.Int64() != cfg.ExpectedChainID {
		return nil, &Error{
			Code: CodeNetworkMismatch,
			Raw:  fmt.Sprintf("connected to chain %d, expected %d", chainID.Int64(), cfg.ExpectedChainID),
		}
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate
	txOpts.GasPrice = nil
	txOpts.Nonce = nil

	address := common.HexToAddress(cfg.ContractAddress)
	return &EthLedger{
		client:    cli,
		contract:  bind.NewBoundContract(address, parsedABI, cli, cli, cli),
		abi:       parsedABI,
		address:   address,
		chainID:   chainID,
		transacts: txOpts,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Sender is the address the ledger signs transactions with.
func (l *EthLedger) Sender() common.Address {
	return l.transacts.From
}

// transact submits one contract call and classifies any failure into the
// escrow taxonomy. opts.From is informational only: the chain ledger always
// signs with its configured key.
func (l *EthLedger) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*Receipt, error) {
	callOpts := *l.transacts
	callOpts.Context = ctx
	callOpts.Value = value

	tx, err := l.contract.Transact(&callOpts, method, args...)
	if err != nil {
		return nil, Classify(fmt.Errorf("%s: %w", method, err))
	}
	return &Receipt{TxHash: tx.Hash().Hex()}, nil
}

func (l *EthLedger) CreateBill(ctx context.Context, _ TxOpts, id BillID, participants []common.Address, amounts []*big.Int) (*Receipt, error) {
	return l.transact(ctx, nil, "createBill", id.Hash(), participants, amounts)
}

func (l *EthLedger) CreateBillFor(ctx context.Context, _ TxOpts, id BillID, beneficiary common.Address, participants []common.Address, amounts []*big.Int) (*Receipt, error) {
	if beneficiary == (common.Address{}) {
		return l.transact(ctx, nil, "createBill", id.Hash(), participants, amounts)
	}
	return l.transact(ctx, nil, "createBillFor", id.Hash(), beneficiary, participants, amounts)
}

func (l *EthLedger) PayShare(ctx context.Context, opts TxOpts, id BillID) (*Receipt, error) {
	return l.transact(ctx, opts.Value, "payShare", id.Hash())
}

func (l *EthLedger) CancelAndRefund(ctx context.Context, _ TxOpts, id BillID) (*Receipt, error) {
	return l.transact(ctx, nil, "cancelAndRefund", id.Hash())
}

func (l *EthLedger) RefundParticipant(ctx context.Context, _ TxOpts, id BillID, participant common.Address) (*Receipt, error) {
	return l.transact(ctx, nil, "refundParticipant", id.Hash(), participant)
}

func (l *EthLedger) PartialSettle(ctx context.Context, _ TxOpts, id BillID) (*Receipt, error) {
	return l.transact(ctx, nil, "partialSettle", id.Hash())
}

func (l *EthLedger) AutoRefundIfExpired(ctx context.Context, _ TxOpts, id BillID) (*Receipt, error) {
	return l.transact(ctx, nil, "autoRefundIfExpired", id.Hash())
}

func (l *EthLedger) GetBillInfo(ctx context.Context, id BillID) (BillInfo, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getBillInfo", id.Hash()); err != nil {
		return BillInfo{}, Classify(err)
	}
	return decodeBillInfo(out)
}

// decodeBillInfo converts raw getBillInfo outputs into a BillInfo. A
// contract at the configured address with a different ABI yields arbitrary
// types here, so every slot is checked instead of asserted.
func decodeBillInfo(out []interface{}) (BillInfo, error) {
	if len(out) != 8 {
		return BillInfo{}, Unrecognized(fmt.Sprintf("getBillInfo returned %d values", len(out)))
	}
	creator, okCreator := out[0].(common.Address)
	beneficiary, okBeneficiary := out[1].(common.Address)
	total, okTotal := out[2].(*big.Int)
	participants, okParticipants := out[3].(*big.Int)
	paid, okPaid := out[4].(*big.Int)
	settled, okSettled := out[5].(bool)
	cancelled, okCancelled := out[6].(bool)
	deadline, okDeadline := out[7].(*big.Int)
	if !okCreator || !okBeneficiary || !okTotal || !okParticipants || !okPaid || !okSettled || !okCancelled || !okDeadline {
		return BillInfo{}, Unrecognized("getBillInfo returned unexpected output types")
	}
	return BillInfo{
		Creator:          creator,
		Beneficiary:      beneficiary,
		TotalAmount:      total,
		ParticipantCount: int(participants.Int64()),
		PaidCount:        int(paid.Int64()),
		Settled:          settled,
		Cancelled:        cancelled,
		Deadline:         time.Unix(deadline.Int64(), 0),
	}, nil
}

// viewOutput extracts the single typed value a view method returns.
func viewOutput[T any](out []interface{}, method string) (T, error) {
	var zero T
	if len(out) != 1 {
		return zero, Unrecognized(fmt.Sprintf("%s returned %d values", method, len(out)))
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, Unrecognized(fmt.Sprintf("%s returned unexpected output type %T", method, out[0]))
	}
	return v, nil
}

func (l *EthLedger) HasPaid(ctx context.Context, id BillID, participant common.Address) (bool, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasPaid", id.Hash(), participant); err != nil {
		return false, Classify(err)
	}
	return viewOutput[bool](out, "hasPaid")
}

func (l *EthLedger) GetShare(ctx context.Context, id BillID, participant common.Address) (*big.Int, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getShare", id.Hash(), participant); err != nil {
		return nil, Classify(err)
	}
	return viewOutput[*big.Int](out, "getShare")
}

func (l *EthLedger) CanRefund(ctx context.Context, id BillID, participant common.Address) (bool, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "canRefund", id.Hash(), participant); err != nil {
		return false, Classify(err)
	}
	return viewOutput[bool](out, "canRefund")
}

func (l *EthLedger) GetPaidAmount(ctx context.Context, id BillID, participant common.Address) (*big.Int, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPaidAmount", id.Hash(), participant); err != nil {
		return nil, Classify(err)
	}
	return viewOutput[*big.Int](out, "getPaidAmount")
}

// WaitConfirmed polls until the transaction is mined or the context expires.
// A mined-but-reverted transaction is surfaced as a classified failure.
func (l *EthLedger) WaitConfirmed(ctx context.Context, receipt *Receipt) error {
	hash := common.HexToHash(receipt.TxHash)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		r, err := l.client.TransactionReceipt(ctx, hash)
		if r != nil {
			if r.Status == 0 {
				return Unrecognized("transaction reverted on-chain: " + receipt.TxHash)
			}
			return nil
		}
		if err != nil && !strings.Contains(err.Error(), "not found") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *EthLedger) Ping(ctx context.Context) error {
	if l.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := l.client.BlockNumber(ctx)
	return err
}

var _ Ledger = (*EthLedger)(nil)
var _ HealthChecker = (*EthLedger)(nil)
