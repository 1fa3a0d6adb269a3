package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-tracker/internal/models"
)

// SiteBestBuy is the registry id for Best Buy product pages.
const SiteBestBuy = "bestbuy"

// BestBuyExtractor parses Best Buy product pages.
type BestBuyExtractor struct {
	priceSelectors []string
	titleSelectors []string
}

func NewBestBuyExtractor() *BestBuyExtractor {
	return &BestBuyExtractor{
		priceSelectors: []string{
			".priceView-customer-price > span",
			".priceView-hero-price > span",
			"[data-testid='customer-price'] span",
			"[data-testid='customer-price']",
			"[aria-label*='current price']",
		},
		titleSelectors: []string{
			"h1.sku-title",
			".sku-title h1",
			"[data-testid='sku-title']",
			"h1.heading-5",
		},
	}
}

func (e *BestBuyExtractor) Site() string { return SiteBestBuy }

func (e *BestBuyExtractor) Extract(doc *goquery.Document) Result {
	price := firstPrice(doc, e.priceSelectors)
	if price == nil {
		// meta tag fallback carries the raw amount without markup
		if content, ok := doc.Find("meta[property='product:price:amount']").Attr("content"); ok {
			price, _ = ParsePrice(content)
		}
	}

	title := firstText(doc, e.titleSelectors)
	if title == "" {
		if content, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
			title = strings.TrimSpace(content)
		}
	}

	return Result{
		Price:        price,
		Title:        title,
		Availability: e.availability(doc),
	}
}

func (e *BestBuyExtractor) availability(doc *goquery.Document) models.Availability {
	soldOut := false
	doc.Find("button, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(s.Text()), "sold out") {
			soldOut = true
			return false
		}
		return true
	})
	if soldOut {
		return models.Unavailable
	}

	if href, ok := doc.Find("link[itemprop='availability']").Attr("href"); ok {
		switch {
		case strings.Contains(href, "OutOfStock"):
			return models.Unavailable
		case strings.Contains(href, "InStock"):
			return models.Available
		}
	}
	return models.AvailabilityUnknown
}
