package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"price-tracker/internal/extract"
	"price-tracker/internal/fetch"
)

const amazonPage = `<html><body>
	<span id="productTitle">Widget</span>
	<span class="a-price"><span class="a-offscreen">$79.99</span></span>
</body></html>`

func newTestScraper(opts ...Option) *Scraper {
	base := []Option{WithBaseDelay(0), WithRequestInterval(0)}
	return New(extract.NewRegistry(), fetch.NewClient(fetch.WithTimeout(2*time.Second)), append(base, opts...)...)
}

func TestScrapeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(amazonPage))
	}))
	defer server.Close()

	snap, err := newTestScraper().Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if snap.Price == nil || *snap.Price != 79.99 {
		t.Errorf("price = %v, want 79.99", snap.Price)
	}
	if snap.Product != "widget" || snap.Site != extract.SiteAmazon || snap.URL != server.URL {
		t.Errorf("snapshot identity = %q/%q/%q", snap.Product, snap.Site, snap.URL)
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestScrapeUnknownSiteNeverFetches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	_, err := newTestScraper().Scrape(context.Background(), "widget", "walmart", server.URL)
	var se *ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *ScrapeError", err)
	}
	if se.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", se.Attempts)
	}
	if !errors.Is(err, extract.ErrUnknownSite) {
		t.Errorf("error chain missing ErrUnknownSite: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
}

func TestScrapeTerminalStatusStopsImmediately(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestScraper().Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	var se *ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *ScrapeError", err)
	}
	if se.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", se.Attempts)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestScrapeRetriesTransientThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(amazonPage))
	}))
	defer server.Close()

	snap, err := newTestScraper().Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	if err != nil {
		t.Fatalf("Scrape failed after transient errors: %v", err)
	}
	if snap.Price == nil || *snap.Price != 79.99 {
		t.Errorf("price = %v, want 79.99", snap.Price)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
}

func TestScrapeExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestScraper(WithMaxRetries(3)).Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	var se *ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *ScrapeError", err)
	}
	if se.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", se.Attempts)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want exactly the attempt ceiling", hits.Load())
	}
	if !strings.Contains(se.Reason, "retries exhausted") {
		t.Errorf("Reason = %q", se.Reason)
	}
}

func TestScrapeRetriesBlockedPage(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.Write([]byte(`<html><body>To discuss automated access, enter the characters you see below.</body></html>`))
			return
		}
		w.Write([]byte(amazonPage))
	}))
	defer server.Close()

	snap, err := newTestScraper().Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	if err != nil {
		t.Fatalf("Scrape failed after blocked page: %v", err)
	}
	if snap.Price == nil {
		t.Fatal("price = nil after recovery")
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestScrapeRetriesExtractionMiss(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Page parses fine but carries no price element.
		hits.Add(1)
		w.Write([]byte(`<html><body><span id="productTitle">Widget</span></body></html>`))
	}))
	defer server.Close()

	_, err := newTestScraper(WithMaxRetries(2)).Scrape(context.Background(), "widget", extract.SiteAmazon, server.URL)
	if !errors.Is(err, ErrNoPrice) {
		t.Fatalf("error chain missing ErrNoPrice: %v", err)
	}
	var se *ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *ScrapeError", err)
	}
	if se.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", se.Attempts)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestScrapeCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScraper(WithBaseDelay(time.Millisecond))
	_, err := s.Scrape(ctx, "widget", extract.SiteAmazon, server.URL)
	if err == nil {
		t.Fatal("expected error with canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error chain missing context.Canceled: %v", err)
	}
}

func TestLimiterPerOrigin(t *testing.T) {
	s := newTestScraper(WithRequestInterval(time.Hour))

	a := s.limiter("https://www.amazon.com/dp/x")
	b := s.limiter("https://www.amazon.com/dp/y")
	c := s.limiter("https://www.bestbuy.com/site/z")

	if a != b {
		t.Error("same origin got distinct limiters")
	}
	if a == c {
		t.Error("distinct origins share a limiter")
	}
}
