// Package tracker orchestrates one tracking run: scrape every configured
// product x site pair, persist snapshots, detect price drops and hand the
// aggregated alerts to the notifier.
package tracker

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"price-tracker/internal/detector"
	"price-tracker/internal/history"
	"price-tracker/internal/models"
	"price-tracker/internal/notify"
	"price-tracker/internal/scraper"
)

// PageScraper is the scraping dependency; satisfied by *scraper.Scraper.
type PageScraper interface {
	Scrape(ctx context.Context, product, site, url string) (models.Snapshot, error)
}

// Tracker runs the scrape-persist-detect-notify pipeline.
type Tracker struct {
	scraper    PageScraper
	store      history.Store
	notifier   notify.Notifier
	thresholds models.Thresholds
}

func New(s PageScraper, store history.Store, notifier notify.Notifier, th models.Thresholds) *Tracker {
	return &Tracker{
		scraper:    s,
		store:      store,
		notifier:   notifier,
		thresholds: th,
	}
}

// Run processes every product x site pair sequentially. One pair's failure
// never aborts the others; cancellation is honored between pairs. The result
// always satisfies Snapshots + len(ScrapeErrors) == pairs processed.
func (t *Tracker) Run(ctx context.Context, products []models.Product) models.RunResult {
	result := models.RunResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log.Printf("Run %s: tracking %d product(s)", result.ID, len(products))

pairs:
	for _, product := range products {
		for _, site := range sortedSites(product.URLs) {
			if ctx.Err() != nil {
				log.Printf("Run %s: canceled, stopping before %s@%s", result.ID, product.Name, site)
				break pairs
			}
			t.trackPair(ctx, product, site, product.URLs[site], &result)
		}
	}

	result.FinishedAt = time.Now().UTC()
	result.Status = models.RunCompleted
	if len(result.ScrapeErrors) > 0 {
		result.Status = models.RunCompletedWithErrors
	}

	t.sendAlerts(ctx, result)

	log.Printf("Run %s %s: %d snapshot(s), %d event(s), %d failure(s)",
		result.ID, result.Status, result.Snapshots, len(result.Events), len(result.ScrapeErrors))
	return result
}

func (t *Tracker) trackPair(ctx context.Context, product models.Product, site, url string, result *models.RunResult) {
	snap, err := t.scraper.Scrape(ctx, product.Name, site, url)
	if err != nil {
		log.Printf("Run %s: scrape failed for %s@%s: %v", result.ID, product.Name, site, err)
		result.ScrapeErrors = append(result.ScrapeErrors, failureFor(product.Name, site, url, err))
		return
	}

	// Read the prior snapshot before appending so the comparison baseline is
	// the previous observation, not the one just taken.
	prev, err := t.store.Latest(ctx, product.Name, site)
	if err != nil {
		log.Printf("Run %s: store read failed for %s@%s (stage: latest): %v", result.ID, product.Name, site, err)
		prev = nil
	}

	if err := t.store.Append(ctx, snap); err != nil {
		log.Printf("Run %s: store write failed for %s@%s (stage: append): %v", result.ID, product.Name, site, err)
		result.ScrapeErrors = append(result.ScrapeErrors, models.ScrapeFailure{
			Product: product.Name,
			Site:    site,
			URL:     url,
			Reason:  "store append: " + err.Error(),
		})
		return
	}
	result.Snapshots++

	if event := detector.Detect(prev, snap, t.thresholds, product.TargetPrice); event != nil {
		log.Printf("Run %s: price drop for %s@%s: $%.2f -> $%.2f (target reached: %t)",
			result.ID, event.Product, event.Site, event.PreviousPrice, event.NewPrice, event.TargetReached)
		result.Events = append(result.Events, *event)
	}
}

// sendAlerts hands the aggregated events to the notifier. Notification
// failures are logged but never change the run status: the data was
// collected either way.
func (t *Tracker) sendAlerts(ctx context.Context, result models.RunResult) {
	if len(result.Events) == 0 || t.notifier == nil {
		return
	}
	payload := notify.Payload{
		RunID:      result.ID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Snapshots:  result.Snapshots,
		Failures:   len(result.ScrapeErrors),
		Events:     result.Events,
	}
	if err := t.notifier.Notify(ctx, payload); err != nil {
		log.Printf("Run %s: notification failed (stage: notify): %v", result.ID, err)
	}
}

func failureFor(product, site, url string, err error) models.ScrapeFailure {
	var se *scraper.ScrapeError
	if errors.As(err, &se) {
		return se.Failure()
	}
	return models.ScrapeFailure{Product: product, Site: site, URL: url, Reason: err.Error()}
}

func sortedSites(urls map[string]string) []string {
	sites := make([]string, 0, len(urls))
	for site := range urls {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}
