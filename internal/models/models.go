package models

import "time"

// Product is one tracked product, loaded from the watchlist at startup and
// immutable for the duration of a run.
type Product struct {
	Name        string            `yaml:"name"`
	URLs        map[string]string `yaml:"urls"` // site id -> product page URL
	TargetPrice *float64          `yaml:"target_price,omitempty"`
}

// Availability is the stock state observed on a product page.
type Availability int

const (
	// AvailabilityUnknown is the default when no stock marker was found on
	// the page. Pages without a marker must never be reported as out of
	// stock.
	AvailabilityUnknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Snapshot is a single timestamped observation of a product at one site.
// Price is nil when the page was fetched but no price could be extracted.
type Snapshot struct {
	Product      string
	Site         string
	Price        *float64
	Title        string
	Availability Availability
	FetchedAt    time.Time // UTC
	URL          string
}

// Thresholds configures when a price drop becomes an alert. The two rules
// are combined with OR: either a percentage drop or an absolute drop
// qualifies.
type Thresholds struct {
	DropPercent float64
	DropAmount  float64
}

// PriceChangeEvent is a detected price drop (or target-price hit) for one
// product at one site. It is produced by the detector and consumed by the
// notifier within the same run; it is never persisted.
type PriceChangeEvent struct {
	Product       string
	Site          string
	URL           string
	PreviousPrice float64
	NewPrice      float64
	Drop          float64 // PreviousPrice - NewPrice, always > 0 for threshold events
	DropPercent   float64
	TargetReached bool
	At            time.Time
}

// RunStatus is the terminal state of a tracker run. Both values are
// non-fatal to the process.
type RunStatus int

const (
	RunCompleted RunStatus = iota
	RunCompletedWithErrors
)

func (s RunStatus) String() string {
	if s == RunCompletedWithErrors {
		return "completed_with_errors"
	}
	return "completed"
}

// ScrapeFailure summarizes one failed product x site pair within a run.
type ScrapeFailure struct {
	Product  string
	Site     string
	URL      string
	Attempts int
	Reason   string
}

// RunResult is what one tracker run reports back to its caller.
// Snapshots + len(ScrapeErrors) always equals the number of configured
// product x site pairs that were processed.
type RunResult struct {
	ID           string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	Snapshots    int
	Events       []PriceChangeEvent
	ScrapeErrors []ScrapeFailure
}
