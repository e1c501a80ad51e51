// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// CategoryTotal is the spend recorded against one level-2 category.
type CategoryTotal struct {
	L1Code string
	L1Name string
	L2Code string
	L2Name string
	Items  int
	Total  float64
}

// ReceiptStore defines the contract for the receipt audit store.
type ReceiptStore interface {
	// Receipt operations
	SaveReceipt(ctx context.Context, receipt *model.Receipt) error
	GetReceipt(ctx context.Context, id string) (*model.Receipt, error)
	ListReceiptsNeedingReview(ctx context.Context, limit int) ([]model.Receipt, error)

	// Reporting
	CategoryTotals(ctx context.Context) ([]CategoryTotal, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}
