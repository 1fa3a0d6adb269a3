package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"price-tracker/internal/extract"
	"price-tracker/internal/fetch"
	"price-tracker/internal/models"
)

// ErrNoPrice marks a page that fetched fine but yielded no parseable price.
// Treated as retryable: a missed selector is usually a transient layout
// variant, not a real absence of a price.
var ErrNoPrice = errors.New("no price found on page")

// ScrapeError is the single failure type a scrape call can return. It never
// escapes as a panic or an unclassified error.
type ScrapeError struct {
	Product  string
	Site     string
	URL      string
	Attempts int
	Reason   string
	Err      error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s@%s after %d attempt(s): %s", e.Product, e.Site, e.Attempts, e.Reason)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Failure converts the error into the run-level summary shape.
func (e *ScrapeError) Failure() models.ScrapeFailure {
	return models.ScrapeFailure{
		Product:  e.Product,
		Site:     e.Site,
		URL:      e.URL,
		Attempts: e.Attempts,
		Reason:   e.Reason,
	}
}

// Scraper wraps the fetch client and the extractor registry with retry,
// backoff and per-origin rate limiting. One call yields exactly one Snapshot
// or one *ScrapeError.
type Scraper struct {
	registry   *extract.Registry
	client     *fetch.Client
	maxRetries int
	baseDelay  time.Duration
	interval   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rng      *rand.Rand
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithMaxRetries sets the attempt ceiling (minimum 1).
func WithMaxRetries(n int) Option {
	return func(s *Scraper) {
		if n >= 1 {
			s.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first-retry backoff base. Zero disables the
// inter-attempt sleep (used by tests).
func WithBaseDelay(d time.Duration) Option {
	return func(s *Scraper) { s.baseDelay = d }
}

// WithRequestInterval sets the minimum spacing between requests to the same
// origin. Zero disables rate limiting (used by tests).
func WithRequestInterval(d time.Duration) Option {
	return func(s *Scraper) { s.interval = d }
}

// New creates a Scraper with 3 attempts, a 1s backoff base and 2s per-origin
// spacing.
func New(registry *extract.Registry, client *fetch.Client, opts ...Option) *Scraper {
	s := &Scraper{
		registry:   registry,
		client:     client,
		maxRetries: 3,
		baseDelay:  time.Second,
		interval:   2 * time.Second,
		limiters:   make(map[string]*rate.Limiter),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches and extracts one product page. Transient fetch failures and
// extraction misses are retried up to the attempt ceiling; terminal failures
// abort immediately.
func (s *Scraper) Scrape(ctx context.Context, product, site, pageURL string) (models.Snapshot, error) {
	fail := func(attempts int, reason string, err error) (models.Snapshot, error) {
		return models.Snapshot{}, &ScrapeError{
			Product:  product,
			Site:     site,
			URL:      pageURL,
			Attempts: attempts,
			Reason:   reason,
			Err:      err,
		}
	}

	extractor, err := s.registry.Resolve(site)
	if err != nil {
		return fail(0, err.Error(), err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if attempt > 1 {
			if err := s.backoff(ctx, attempt); err != nil {
				return fail(attempt-1, "canceled while backing off", err)
			}
		}
		if err := s.limiter(pageURL).Wait(ctx); err != nil {
			return fail(attempt-1, "canceled while rate limited", err)
		}

		doc, err := s.client.Fetch(ctx, pageURL)
		if err != nil {
			lastErr = err
			var fe *fetch.Error
			if errors.As(err, &fe) && fe.Retryable() {
				continue
			}
			return fail(attempt, err.Error(), err)
		}

		result := extractor.Extract(doc)
		if result.Price == nil {
			lastErr = ErrNoPrice
			continue
		}

		return models.Snapshot{
			Product:      product,
			Site:         site,
			Price:        result.Price,
			Title:        result.Title,
			Availability: result.Availability,
			FetchedAt:    time.Now().UTC(),
			URL:          pageURL,
		}, nil
	}

	reason := "retries exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("retries exhausted: %v", lastErr)
	}
	return fail(s.maxRetries, reason, lastErr)
}

// backoff sleeps a jittered, growing delay before retry attempts: roughly
// 1-3s before the second attempt, 2-5s before the third, 4-8s before the
// fourth. Desynchronizes concurrent scrapers as a side effect.
func (s *Scraper) backoff(ctx context.Context, attempt int) error {
	if s.baseDelay <= 0 {
		return nil
	}
	min := s.baseDelay << (attempt - 2)
	s.mu.Lock()
	jitter := time.Duration(s.rng.Int63n(int64(min) + int64(time.Second)))
	s.mu.Unlock()

	timer := time.NewTimer(min + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// limiter returns the rate limiter for the URL's origin, creating it on
// first use. Requests to distinct origins never throttle each other.
func (s *Scraper) limiter(pageURL string) *rate.Limiter {
	origin := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		origin = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[origin]
	if !ok {
		limit := rate.Inf
		if s.interval > 0 {
			limit = rate.Every(s.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		s.limiters[origin] = lim
	}
	return lim
}
