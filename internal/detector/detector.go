// Package detector decides whether a new price observation warrants an
// alert. Detection is a pure function of its inputs so repeated calls over
// the same snapshot pair always agree.
package detector

import "price-tracker/internal/models"

// Detect compares the current snapshot against the previous one and returns
// an event when the drop crosses a threshold or the target price is reached,
// nil otherwise.
//
// Rules, in order:
//   - no previous snapshot, or either price missing: nothing to compare
//     (though a configured target can still fire on the current price alone);
//   - price rose or held: no threshold event — increases never alert;
//   - drop qualifies when it meets the percentage threshold OR the absolute
//     threshold, whichever is crossed first.
func Detect(previous *models.Snapshot, current models.Snapshot, th models.Thresholds, targetPrice *float64) *models.PriceChangeEvent {
	if current.Price == nil {
		return nil
	}

	targetReached := targetPrice != nil && *current.Price <= *targetPrice

	if previous == nil || previous.Price == nil {
		if !targetReached {
			return nil
		}
		// First observation already at or below target: alert on the target
		// alone, with no drop to report.
		return &models.PriceChangeEvent{
			Product:       current.Product,
			Site:          current.Site,
			URL:           current.URL,
			NewPrice:      *current.Price,
			TargetReached: true,
			At:            current.FetchedAt,
		}
	}

	prev := *previous.Price
	cur := *current.Price
	drop := prev - cur

	var pct float64
	if prev > 0 {
		pct = drop / prev * 100
	}

	thresholdHit := drop > 0 && (pct >= th.DropPercent || drop >= th.DropAmount)
	if !thresholdHit && !targetReached {
		return nil
	}

	event := &models.PriceChangeEvent{
		Product:       current.Product,
		Site:          current.Site,
		URL:           current.URL,
		PreviousPrice: prev,
		NewPrice:      cur,
		TargetReached: targetReached,
		At:            current.FetchedAt,
	}
	if drop > 0 {
		event.Drop = drop
		event.DropPercent = pct
	}
	return event
}
