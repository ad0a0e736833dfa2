package escrow

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BillID is the 32-byte on-ledger bill identifier.
type BillID [32]byte

// DeriveBillID maps an off-chain bill ID onto its ledger identifier by
// hashing the UTF-8 bytes with keccak-256. The mapping is stable, so the
// ledger ID can be regenerated from the bill at any time, and collisions
// would require breaking the hash.
func DeriveBillID(offchainID string) BillID {
	return BillID(crypto.Keccak256Hash([]byte(offchainID)))
}

// ParseBillID decodes a 0x-prefixed hex ledger ID.
func ParseBillID(hexID string) BillID {
	return BillID(common.HexToHash(hexID))
}

func (id BillID) Hash() common.Hash {
	return common.Hash(id)
}

func (id BillID) Hex() string {
	return common.Hash(id).Hex()
}
