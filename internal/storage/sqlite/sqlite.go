// Package sqlite provides a SQLite-backed implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"splitrails/internal/models"
	"splitrails/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path. It creates the
// parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity, for health reporting.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveBill inserts or replaces a bill with its participants and items.
func (s *SQLiteStore) SaveBill(ctx context.Context, bill *models.Bill) error {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.CreatedAt == 0 {
		bill.CreatedAt = time.Now().Unix()
	}
	if bill.Status == "" {
		bill.Status = models.BillStatusDraft
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, title, creator_address, beneficiary_address, tax, tip, status, escrow_bill_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			creator_address = excluded.creator_address,
			beneficiary_address = excluded.beneficiary_address,
			tax = excluded.tax,
			tip = excluded.tip,
			status = excluded.status,
			escrow_bill_id = excluded.escrow_bill_id`,
		bill.ID, bill.Title, bill.CreatorAddress, bill.BeneficiaryAddress,
		bill.Tax, bill.Tip, string(bill.Status), bill.EscrowBillID, bill.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert bill: %w", err)
	}

	// Replace participants and items wholesale; assignments cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE bill_id = ?`, bill.ID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE bill_id = ?`, bill.ID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}

	for i := range bill.Participants {
		p := &bill.Participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id, bill_id, address, display_name, position)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, bill.ID, p.Address, p.DisplayName, i)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	for i := range bill.Items {
		item := &bill.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, bill_id, description, amount, position)
			VALUES (?, ?, ?, ?, ?)`,
			item.ID, bill.ID, item.Description, item.Amount, i)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		for _, pid := range item.ParticipantIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO item_assignments (item_id, participant_id) VALUES (?, ?)`,
				item.ID, pid)
			if err != nil {
				return fmt.Errorf("failed to insert assignment: %w", err)
			}
		}
	}

	return tx.Commit()
}

// LoadBill retrieves a bill with its participants and items in stored order.
func (s *SQLiteStore) LoadBill(ctx context.Context, billID string) (*models.Bill, error) {
	bill := &models.Bill{ID: billID}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT title, creator_address, beneficiary_address, tax, tip, status, escrow_bill_id, created_at
		FROM bills WHERE id = ?`, billID).
		Scan(&bill.Title, &bill.CreatorAddress, &bill.BeneficiaryAddress,
			&bill.Tax, &bill.Tip, &status, &bill.EscrowBillID, &bill.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bill: %w", err)
	}
	bill.Status = models.BillStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, display_name FROM participants
		WHERE bill_id = ? ORDER BY position`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Address, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		bill.Participants = append(bill.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount FROM items
		WHERE bill_id = ? ORDER BY position`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item models.Item
		if err := itemRows.Scan(&item.ID, &item.Description, &item.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		bill.Items = append(bill.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range bill.Items {
		assignRows, err := s.db.QueryContext(ctx, `
			SELECT participant_id FROM item_assignments WHERE item_id = ? ORDER BY rowid`, bill.Items[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assignments: %w", err)
		}
		for assignRows.Next() {
			var pid string
			if err := assignRows.Scan(&pid); err != nil {
				assignRows.Close()
				return nil, fmt.Errorf("failed to scan assignment: %w", err)
			}
			bill.Items[i].ParticipantIDs = append(bill.Items[i].ParticipantIDs, pid)
		}
		if err := assignRows.Err(); err != nil {
			assignRows.Close()
			return nil, err
		}
		assignRows.Close()
	}

	return bill, nil
}
