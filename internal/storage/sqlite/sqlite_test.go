package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"splitrails/internal/models"
	"splitrails/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "bills.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBill() *models.Bill {
	return &models.Bill{
		Title:          "Team dinner",
		CreatorAddress: "0x00000000000000000000000000000000000000c0",
		Tax:            8.50,
		Tip:            15.00,
		Participants: []models.Participant{
			{ID: "p1", Address: "0x00000000000000000000000000000000000000a1", DisplayName: "Alice"},
			{ID: "p2", Address: "0x00000000000000000000000000000000000000b2", DisplayName: "Bob"},
			{ID: "p3", Address: "0x00000000000000000000000000000000000000d3", DisplayName: "Carol"},
		},
		Items: []models.Item{
			{ID: "i1", Description: "Pasta", Amount: 18.00, ParticipantIDs: []string{"p1"}},
			{ID: "i2", Description: "Wine", Amount: 42.00, ParticipantIDs: []string{"p1", "p2", "p3"}},
			{ID: "i3", Description: "Tiramisu", Amount: 9.00, ParticipantIDs: []string{"p2", "p3"}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	bill := sampleBill()

	if err := store.SaveBill(ctx, bill); err != nil {
		t.Fatalf("save: %v", err)
	}
	if bill.ID == "" {
		t.Fatal("save must assign a bill ID")
	}
	if bill.CreatedAt == 0 {
		t.Fatal("save must stamp creation time")
	}
	if bill.Status != models.BillStatusDraft {
		t.Fatalf("status = %s, want draft default", bill.Status)
	}

	loaded, err := store.LoadBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Title != bill.Title || loaded.CreatorAddress != bill.CreatorAddress {
		t.Errorf("bill fields lost: %+v", loaded)
	}
	if loaded.Tax != bill.Tax || loaded.Tip != bill.Tip {
		t.Errorf("tax/tip = %v/%v, want %v/%v", loaded.Tax, loaded.Tip, bill.Tax, bill.Tip)
	}

	if len(loaded.Participants) != 3 {
		t.Fatalf("got %d participants, want 3", len(loaded.Participants))
	}
	for i, p := range bill.Participants {
		got := loaded.Participants[i]
		if got.ID != p.ID || got.Address != p.Address || got.DisplayName != p.DisplayName {
			t.Errorf("participant %d = %+v, want %+v", i, got, p)
		}
	}

	if len(loaded.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(loaded.Items))
	}
	for i, item := range bill.Items {
		got := loaded.Items[i]
		if got.Description != item.Description || got.Amount != item.Amount {
			t.Errorf("item %d = %+v, want %+v", i, got, item)
		}
		if len(got.ParticipantIDs) != len(item.ParticipantIDs) {
			t.Fatalf("item %d has %d assignments, want %d", i, len(got.ParticipantIDs), len(item.ParticipantIDs))
		}
		for j, id := range item.ParticipantIDs {
			if got.ParticipantIDs[j] != id {
				t.Errorf("item %d assignment %d = %s, want %s", i, j, got.ParticipantIDs[j], id)
			}
		}
	}
}

func TestLoadMissingBill(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LoadBill(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveBillUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	bill := sampleBill()

	if err := store.SaveBill(ctx, bill); err != nil {
		t.Fatalf("save: %v", err)
	}

	bill.Status = models.BillStatusActive
	bill.EscrowBillID = "0xdeadbeef"
	bill.Items = bill.Items[:1]
	bill.Participants = append(bill.Participants, models.Participant{
		ID: "p4", Address: "0x00000000000000000000000000000000000000e4", DisplayName: "Dave",
	})
	if err := store.SaveBill(ctx, bill); err != nil {
		t.Fatalf("resave: %v", err)
	}

	loaded, err := store.LoadBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != models.BillStatusActive || loaded.EscrowBillID != "0xdeadbeef" {
		t.Errorf("escrow fields not updated: %+v", loaded)
	}
	if len(loaded.Items) != 1 {
		t.Errorf("got %d items after resave, want 1", len(loaded.Items))
	}
	if len(loaded.Participants) != 4 {
		t.Errorf("got %d participants after resave, want 4", len(loaded.Participants))
	}
}

func TestSaveBillGeneratesMissingIDs(t *testing.T) {
	store := newTestStore(t)
	bill := &models.Bill{
		Title:          "No IDs",
		CreatorAddress: "0x00000000000000000000000000000000000000c0",
		Participants:   []models.Participant{{Address: "0x00000000000000000000000000000000000000a1"}},
	}

	if err := store.SaveBill(context.Background(), bill); err != nil {
		t.Fatalf("save: %v", err)
	}
	if bill.Participants[0].ID == "" {
		t.Fatal("save must assign participant IDs")
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
