// Package split computes per-participant shares for a bill.
package split

import (
	"splitrails/internal/models"
)

// CalculateShares computes each participant's share of the bill: assigned
// item amounts split evenly per item, plus a proportional cut of tax and tip.
// Output has one entry per bill participant, in bill order. Items with no
// assigned participants contribute nothing. The function is deterministic:
// identical bill input always yields identical shares.
func CalculateShares(bill *models.Bill) []models.ParticipantShare {
	totals := make(map[string]float64, len(bill.Participants))
	for _, p := range bill.Participants {
		totals[p.ID] = 0
	}

	for _, item := range bill.Items {
		if len(item.ParticipantIDs) == 0 {
			continue
		}
		perPerson := item.Amount / float64(len(item.ParticipantIDs))
		for _, id := range item.ParticipantIDs {
			if _, ok := totals[id]; ok {
				totals[id] += perPerson
			}
		}
	}

	// Sum in participant order: float addition is order-sensitive, and map
	// iteration order would make identical bills produce different shares.
	var subtotal float64
	for _, p := range bill.Participants {
		subtotal += totals[p.ID]
	}

	shares := make([]models.ParticipantShare, 0, len(bill.Participants))
	for _, p := range bill.Participants {
		base := totals[p.ID]
		var proportion float64
		if subtotal > 0 {
			proportion = base / subtotal
		}
		shares = append(shares, models.ParticipantShare{
			ParticipantID: p.ID,
			Amount:        base + proportion*bill.Tax + proportion*bill.Tip,
		})
	}
	return shares
}
