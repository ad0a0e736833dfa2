package models

// ParticipantShare is one participant's computed share of a bill. Shares are
// derived from the bill on demand and never stored independently; identical
// bill input always yields identical shares.
type ParticipantShare struct {
	// ParticipantID references the owning Participant.
	ParticipantID string

	// Amount is the share in the bill's source currency: the participant's
	// item total plus a proportional cut of tax and tip.
	Amount float64

	// Paid reports whether the participant has settled up off-chain.
	Paid bool

	// EscrowPaid reports whether the participant's escrow payment confirmed.
	EscrowPaid bool

	// TxRef is the escrow payment transaction hash, if any.
	TxRef string
}
