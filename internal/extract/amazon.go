package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-tracker/internal/models"
)

// SiteAmazon is the registry id for Amazon product pages.
const SiteAmazon = "amazon"

// AmazonExtractor parses Amazon product pages. Amazon rotates page layouts
// frequently, so both price and title carry an ordered fallback list of
// selectors.
type AmazonExtractor struct {
	priceSelectors []string
	titleSelectors []string
}

func NewAmazonExtractor() *AmazonExtractor {
	return &AmazonExtractor{
		priceSelectors: []string{
			"span.a-price span.a-offscreen",
			"span.a-price-whole",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
			"span.priceToPay",
		},
		titleSelectors: []string{
			"#productTitle",
			"h1 span.product-title-word-break",
			"span.product-title-word-break",
		},
	}
}

func (e *AmazonExtractor) Site() string { return SiteAmazon }

func (e *AmazonExtractor) Extract(doc *goquery.Document) Result {
	return Result{
		Price:        firstPrice(doc, e.priceSelectors),
		Title:        firstText(doc, e.titleSelectors),
		Availability: e.availability(doc),
	}
}

// availability reads the #availability block. Missing markers stay unknown;
// only an explicit out-of-stock message flips to unavailable.
func (e *AmazonExtractor) availability(doc *goquery.Document) models.Availability {
	text := strings.ToLower(strings.TrimSpace(doc.Find("#availability").First().Text()))
	if text == "" {
		return models.AvailabilityUnknown
	}
	if strings.Contains(text, "out of stock") || strings.Contains(text, "unavailable") {
		return models.Unavailable
	}
	if strings.Contains(text, "in stock") {
		return models.Available
	}
	return models.AvailabilityUnknown
}
