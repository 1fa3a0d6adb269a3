// Package history persists the per-product, per-site price time series.
// The core treats the store as append-only plus read-latest; row order is
// insertion order and duplicate timestamps are kept as-is.
package history

import (
	"context"
	"time"

	"price-tracker/internal/models"
)

// Store is the persistence boundary consumed by the tracker.
type Store interface {
	// Append records one snapshot. The snapshot is owned by the store after
	// this call returns.
	Append(ctx context.Context, snap models.Snapshot) error
	// Latest returns the most recent snapshot for a product/site pair, or
	// nil when none has been recorded yet.
	Latest(ctx context.Context, product, site string) (*models.Snapshot, error)
	// History returns snapshots since the given instant, oldest first.
	History(ctx context.Context, product, site string, since time.Time) ([]models.Snapshot, error)
}
