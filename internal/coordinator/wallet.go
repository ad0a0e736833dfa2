package coordinator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StaticWallet is a Wallet for callers identified only by address: API
// requests acting on behalf of a participant, and tests. It is always
// connected and reports the chain it was constructed for, so the network
// precondition passes without a real signer attached.
type StaticWallet struct {
	Addr  common.Address
	Chain int64

	// Funds, when set, backs the best-effort balance pre-check.
	Funds *big.Int
}

func (w *StaticWallet) Connected() bool         { return w.Addr != (common.Address{}) }
func (w *StaticWallet) Address() common.Address { return w.Addr }

func (w *StaticWallet) ChainID(_ context.Context) (int64, error) {
	return w.Chain, nil
}

func (w *StaticWallet) SwitchChain(_ context.Context, chainID int64) error {
	return fmt.Errorf("static wallet cannot switch to chain %d", chainID)
}

func (w *StaticWallet) Balance(_ context.Context) (*big.Int, error) {
	if w.Funds == nil {
		return nil, fmt.Errorf("balance unavailable")
	}
	return new(big.Int).Set(w.Funds), nil
}

var _ Wallet = (*StaticWallet)(nil)
