package models

// BillStatus tracks where a bill is in its lifecycle.
type BillStatus string

const (
	// BillStatusDraft means the bill is still being edited.
	BillStatusDraft BillStatus = "draft"

	// BillStatusActive means an escrow has been created for the bill and
	// participants can pay their shares.
	BillStatusActive BillStatus = "active"

	// BillStatusSettled means escrow funds were forwarded to the beneficiary.
	BillStatusSettled BillStatus = "settled"

	// BillStatusCancelled means the escrow was cancelled or expired and paid
	// participants may claim refunds.
	BillStatusCancelled BillStatus = "cancelled"
)

// Bill is the off-chain record of a shared bill: line items, participants,
// tax and tip. The escrow ledger never sees a Bill directly; it sees the
// funding data derived from one.
type Bill struct {
	// ID is the unique identifier for the bill (UUID format).
	ID string

	// Title is the human-readable name for the bill.
	Title string

	// CreatorAddress is the hex address of the person who created the bill
	// and (by default) receives settled funds.
	CreatorAddress string

	// BeneficiaryAddress optionally overrides the settlement recipient.
	// Empty means the creator is the beneficiary.
	BeneficiaryAddress string

	// Items are the individual line items on the bill, in entry order.
	Items []Item

	// Participants are the people splitting the bill, in entry order.
	Participants []Participant

	// Tax is the tax amount in the bill's source currency.
	Tax float64

	// Tip is the tip amount in the bill's source currency.
	Tip float64

	// Status is the bill's lifecycle state.
	Status BillStatus

	// EscrowBillID is the hex ledger bill ID, set once escrow is created.
	EscrowBillID string

	// CreatedAt is the Unix timestamp when the bill was created.
	CreatedAt int64
}

// Item is a single line item on a bill. Items assigned to multiple
// participants are split equally among them.
type Item struct {
	// ID is the unique identifier for the item (UUID format).
	ID string

	// Description is the name of the item (e.g., "Pizza", "Beer").
	Description string

	// Amount is the pre-tax price of this item in the source currency.
	Amount float64

	// ParticipantIDs lists the participants who share this item.
	ParticipantIDs []string
}

// Participant is one person on a bill.
type Participant struct {
	// ID is the unique identifier for the participant (UUID format).
	ID string

	// Address is the participant's hex wallet address.
	Address string

	// DisplayName is an optional human-readable name.
	DisplayName string
}

// Subtotal returns the sum of all item amounts.
func (b *Bill) Subtotal() float64 {
	var total float64
	for _, item := range b.Items {
		total += item.Amount
	}
	return total
}

// ParticipantByID returns the participant with the given ID, or nil.
func (b *Bill) ParticipantByID(id string) *Participant {
	for i := range b.Participants {
		if b.Participants[i].ID == id {
			return &b.Participants[i]
		}
	}
	return nil
}

// Beneficiary returns the settlement recipient: the explicit beneficiary
// address when set, otherwise the creator.
func (b *Bill) Beneficiary() string {
	if b.BeneficiaryAddress != "" {
		return b.BeneficiaryAddress
	}
	return b.CreatorAddress
}
