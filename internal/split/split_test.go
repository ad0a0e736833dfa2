package split

import (
	"math"
	"testing"

	"splitrails/internal/models"
)

func TestCalculateShares(t *testing.T) {
	tests := []struct {
		name         string
		bill         *models.Bill
		validateFunc func(t *testing.T, shares []models.ParticipantShare)
	}{
		{
			name: "two person split with tax and tip",
			bill: &models.Bill{
				Items: []models.Item{
					{Description: "Pizza", Amount: 20.0, ParticipantIDs: []string{"alice", "bob"}},
					{Description: "Salad", Amount: 10.0, ParticipantIDs: []string{"alice"}},
				},
				Participants: []models.Participant{{ID: "alice"}, {ID: "bob"}},
				Tax:          3.0,
				Tip:          6.0,
			},
			validateFunc: func(t *testing.T, shares []models.ParticipantShare) {
				// Alice: items = 10 + 10 = 20, proportion 2/3, tax 2, tip 4 -> 26
				// Bob: items = 10, proportion 1/3, tax 1, tip 2 -> 13
				if math.Abs(shares[0].Amount-26.0) > 1e-6 {
					t.Errorf("alice share = %v, want 26.0", shares[0].Amount)
				}
				if math.Abs(shares[1].Amount-13.0) > 1e-6 {
					t.Errorf("bob share = %v, want 13.0", shares[1].Amount)
				}
			},
		},
		{
			name: "item with no assignees contributes nothing",
			bill: &models.Bill{
				Items: []models.Item{
					{Description: "Burger", Amount: 15.0, ParticipantIDs: []string{"alice"}},
					{Description: "Orphan", Amount: 99.0, ParticipantIDs: nil},
				},
				Participants: []models.Participant{{ID: "alice"}, {ID: "bob"}},
			},
			validateFunc: func(t *testing.T, shares []models.ParticipantShare) {
				if math.Abs(shares[0].Amount-15.0) > 1e-6 {
					t.Errorf("alice share = %v, want 15.0", shares[0].Amount)
				}
				if shares[1].Amount != 0 {
					t.Errorf("bob share = %v, want 0", shares[1].Amount)
				}
			},
		},
		{
			name: "no items yields zero shares without dividing by zero",
			bill: &models.Bill{
				Participants: []models.Participant{{ID: "alice"}, {ID: "bob"}},
				Tax:          5.0,
				Tip:          5.0,
			},
			validateFunc: func(t *testing.T, shares []models.ParticipantShare) {
				for _, s := range shares {
					if s.Amount != 0 {
						t.Errorf("share %s = %v, want 0", s.ParticipantID, s.Amount)
					}
				}
			},
		},
		{
			name: "participant with no assigned items has zero share",
			bill: &models.Bill{
				Items: []models.Item{
					{Description: "Wine", Amount: 30.0, ParticipantIDs: []string{"alice"}},
				},
				Participants: []models.Participant{{ID: "alice"}, {ID: "carol"}},
				Tax:          3.0,
			},
			validateFunc: func(t *testing.T, shares []models.ParticipantShare) {
				if math.Abs(shares[0].Amount-33.0) > 1e-6 {
					t.Errorf("alice share = %v, want 33.0", shares[0].Amount)
				}
				if shares[1].Amount != 0 {
					t.Errorf("carol share = %v, want 0", shares[1].Amount)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := CalculateShares(tt.bill)
			if len(shares) != len(tt.bill.Participants) {
				t.Fatalf("got %d shares, want %d", len(shares), len(tt.bill.Participants))
			}
			for i, s := range shares {
				if s.ParticipantID != tt.bill.Participants[i].ID {
					t.Fatalf("share %d is for %s, want %s", i, s.ParticipantID, tt.bill.Participants[i].ID)
				}
			}
			tt.validateFunc(t, shares)
		})
	}
}

func TestCalculateSharesBalance(t *testing.T) {
	bill := &models.Bill{
		Items: []models.Item{
			{Description: "Sushi", Amount: 42.37, ParticipantIDs: []string{"a", "b", "c"}},
			{Description: "Sake", Amount: 18.90, ParticipantIDs: []string{"a", "c"}},
			{Description: "Mochi", Amount: 7.25, ParticipantIDs: []string{"b"}},
		},
		Participants: []models.Participant{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Tax:          6.12,
		Tip:          10.0,
	}

	shares := CalculateShares(bill)

	var sum float64
	for _, s := range shares {
		sum += s.Amount
	}
	want := bill.Subtotal() + bill.Tax + bill.Tip
	if math.Abs(sum-want) > 1e-6 {
		t.Fatalf("shares sum to %v, want %v", sum, want)
	}
}

// Three or more participants with amounts that do not sum exactly in binary
// float: the subtotal must be accumulated in a fixed order, or identical
// bills produce bit-different shares across calls and the regenerated escrow
// funding amounts no longer match the committed ones.
func TestCalculateSharesDeterministic(t *testing.T) {
	bill := &models.Bill{
		Items: []models.Item{
			{Description: "Espresso", Amount: 0.1, ParticipantIDs: []string{"a"}},
			{Description: "Cortado", Amount: 0.2, ParticipantIDs: []string{"b"}},
			{Description: "Flat white", Amount: 0.3, ParticipantIDs: []string{"c"}},
		},
		Participants: []models.Participant{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Tax:          1.0,
		Tip:          1.0,
	}

	first := CalculateShares(bill)
	for run := 0; run < 1000; run++ {
		again := CalculateShares(bill)
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run %d: share %q = %.20f, first run gave %.20f",
					run, again[i].ParticipantID, again[i].Amount, first[i].Amount)
			}
		}
	}
}
