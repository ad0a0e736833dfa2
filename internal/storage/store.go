// Package storage provides abstractions for persistent bill storage.
package storage

import (
	"context"
	"errors"

	"splitrails/internal/models"
)

// ErrNotFound is returned when no bill exists under the requested ID.
var ErrNotFound = errors.New("bill not found")

// Store is the bill persistence interface. Swapping backends (SQLite,
// PostgreSQL) must not touch the service layer.
type Store interface {
	// SaveBill inserts or replaces a bill. Missing IDs are populated.
	SaveBill(ctx context.Context, bill *models.Bill) error

	// LoadBill retrieves a bill by ID, or ErrNotFound.
	LoadBill(ctx context.Context, billID string) (*models.Bill, error)

	// Close releases any resources held by the store.
	Close() error
}
