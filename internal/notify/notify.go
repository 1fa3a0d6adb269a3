// Package notify delivers one aggregated alert payload per tracker run.
// Delivery is best-effort: the tracker logs notifier failures but never
// fails a run over them, and no retry obligation exists at this boundary.
package notify

import (
	"context"
	"errors"
	"time"

	"price-tracker/internal/models"
)

// Payload is the aggregated result of one run: every price-change event in
// the order produced, plus run summary figures.
type Payload struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Snapshots  int
	Failures   int
	Events     []models.PriceChangeEvent
}

// Notifier sends one payload over one channel.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// Multi fans a payload out to several notifiers. Every notifier is attempted
// regardless of earlier failures; errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, p Payload) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
