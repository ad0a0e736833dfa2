package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"splitrails/internal/models"
)

// FundingData is the exact participant and amount list committed to the
// ledger at creation. Amounts are in wei and immutable once created, so the
// float-to-wei conversion here is the only place rounding happens.
type FundingData struct {
	Participants []common.Address
	Amounts      []*big.Int
	Total        *big.Int
}

// PrepareFunding converts calculated shares into ledger funding data at the
// given source-currency-per-asset rate. Shares of zero are excluded: a
// participant with nothing assigned owes nothing and is not part of the
// escrow. Conversion truncates toward zero at wei precision; truncation (not
// round-half-up) keeps the committed amount reproducible from the same
// inputs on any platform.
func PrepareFunding(bill *models.Bill, shares []models.ParticipantShare, rate float64) (*FundingData, error) {
	if rate <= 0 {
		return nil, &Error{Code: CodeInvalidFunding, Raw: "exchange rate must be positive"}
	}

	data := &FundingData{Total: new(big.Int)}
	for _, share := range shares {
		if share.Amount <= 0 {
			continue
		}
		participant := bill.ParticipantByID(share.ParticipantID)
		if participant == nil {
			return nil, &Error{Code: CodeParticipantNotFound, Raw: "share references unknown participant " + share.ParticipantID}
		}
		if !common.IsHexAddress(participant.Address) {
			return nil, &Error{Code: CodeInvalidFunding, Raw: "invalid address for participant " + share.ParticipantID}
		}

		amount := toWei(share.Amount, rate)
		if amount.Sign() <= 0 {
			continue
		}
		data.Participants = append(data.Participants, common.HexToAddress(participant.Address))
		data.Amounts = append(data.Amounts, amount)
		data.Total.Add(data.Total, amount)
	}

	if len(data.Participants) == 0 {
		return nil, ErrNoPayableParticipants
	}
	return data, nil
}

// toWei converts a source-currency amount to wei at the given rate,
// truncating toward zero.
func toWei(amount, rate float64) *big.Int {
	asset := new(big.Float).SetPrec(128).Quo(big.NewFloat(amount), big.NewFloat(rate))
	asset.Mul(asset, new(big.Float).SetPrec(128).SetInt(big.NewInt(params.Ether)))
	wei, _ := asset.Int(nil)
	return wei
}
