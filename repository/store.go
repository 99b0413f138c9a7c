package repository

import (
	"context"
	"time"

	"pennytrack/models"

	"github.com/shopspring/decimal"
)

// Store owns tracked items and their price history. Every call reads or
// writes through to the backend; nothing is cached between calls.
type Store interface {
	// UpsertCandidates inserts candidates whose SKU is not yet tracked and
	// returns how many were inserted. Existing items are left untouched.
	UpsertCandidates(ctx context.Context, candidates []models.ClearanceCandidate) (int, error)
	ListTracked(ctx context.Context) ([]models.TrackedItem, error)
	GetTracked(ctx context.Context, sku string) (*models.TrackedItem, error)
	// AddTracked reports false when the SKU was already tracked
	AddTracked(ctx context.Context, item models.TrackedItem) (bool, error)
	RemoveTracked(ctx context.Context, sku string) error
	// ApplyFetchResult sets the item's last price and appends an observation
	ApplyFetchResult(ctx context.Context, sku string, price decimal.Decimal, at time.Time) error
	// History returns observations in storage order; callers sort
	History(ctx context.Context, sku string) ([]models.PriceObservation, error)
	Close() error
}

// candidatesToItems drops blank and repeated SKUs, keeping first occurrence
func candidatesToItems(candidates []models.ClearanceCandidate) []models.TrackedItem {
	seen := make(map[string]bool, len(candidates))
	items := make([]models.TrackedItem, 0, len(candidates))
	for _, c := range candidates {
		if c.SKU == "" || seen[c.SKU] {
			continue
		}
		seen[c.SKU] = true
		items = append(items, models.TrackedItem{SKU: c.SKU, StoreID: c.StoreID, Name: c.Name})
	}
	return items
}
