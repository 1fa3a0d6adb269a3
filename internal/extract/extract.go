package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-tracker/internal/models"
)

// ErrUnknownSite is returned when no extractor is registered for a site id.
// The registry fails closed: there is no default extractor.
var ErrUnknownSite = errors.New("unknown site")

// Result is what an extractor pulls out of a fetched product page.
// A nil Price means the page parsed but no selector produced a usable price.
type Result struct {
	Price        *float64
	Title        string
	Availability models.Availability
}

// Extractor parses one retailer's product pages. Adding a retailer means
// adding an implementation and a registry entry.
type Extractor interface {
	Site() string
	Extract(doc *goquery.Document) Result
}

// Registry maps site ids to extractors. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with all supported retailers registered.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(NewAmazonExtractor())
	r.Register(NewBestBuyExtractor())
	return r
}

// Register adds an extractor under its site id. Call before the first run;
// the registry is not safe for concurrent mutation.
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Site()] = e
}

// Resolve returns the extractor for a site id, or ErrUnknownSite.
func (r *Registry) Resolve(site string) (Extractor, error) {
	e, ok := r.extractors[site]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, site)
	}
	return e, nil
}

// Sites returns the registered site ids.
func (r *Registry) Sites() []string {
	sites := make([]string, 0, len(r.extractors))
	for s := range r.extractors {
		sites = append(sites, s)
	}
	return sites
}

// SiteFor maps a product URL to a registered site id.
func SiteFor(url string) (string, bool) {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "amazon.com"):
		return SiteAmazon, true
	case strings.Contains(lower, "bestbuy.com"):
		return SiteBestBuy, true
	default:
		return "", false
	}
}

// firstText returns the trimmed text of the first selector that matches a
// non-empty element, trying each selector in order.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// firstPrice runs the selector list through ParsePrice and returns the first
// parseable hit.
func firstPrice(doc *goquery.Document, selectors []string) *float64 {
	for _, sel := range selectors {
		var price *float64
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if p, ok := ParsePrice(s.Text()); ok {
				price = p
				return false
			}
			return true
		})
		if price != nil {
			return price
		}
	}
	return nil
}
