package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"price-tracker/internal/models"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func snap(product, site string, price float64, at time.Time) models.Snapshot {
	return models.Snapshot{
		Product:      product,
		Site:         site,
		Price:        &price,
		Title:        "Some Product",
		Availability: models.Available,
		FetchedAt:    at,
		URL:          "https://example.com/p",
	}
}

func TestLatestEmpty(t *testing.T) {
	store := openStore(t)

	got, err := store.Latest(context.Background(), "widget", "amazon")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Errorf("Latest on empty store = %+v, want nil", got)
	}
}

func TestAppendAndLatest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, price := range []float64{100, 95, 90} {
		if err := store.Append(ctx, snap("widget", "amazon", price, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// A different pair must not leak into the lookup.
	if err := store.Append(ctx, snap("widget", "bestbuy", 80, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, snap("gadget", "amazon", 10, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Latest(ctx, "widget", "amazon")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil || got.Price == nil || *got.Price != 90 {
		t.Fatalf("Latest = %+v, want price 90", got)
	}
	if got.Availability != models.Available {
		t.Errorf("availability = %v, want available", got.Availability)
	}
}

func TestAppendNilPrice(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	s := snap("widget", "amazon", 0, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.Price = nil
	s.Availability = models.Unavailable
	if err := store.Append(ctx, s); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Latest(ctx, "widget", "amazon")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil {
		t.Fatal("Latest = nil")
	}
	if got.Price != nil {
		t.Errorf("price = %v, want nil round-tripped", *got.Price)
	}
	if got.Availability != models.Unavailable {
		t.Errorf("availability = %v, want unavailable", got.Availability)
	}
}

func TestHistoryOrderAndWindow(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	prices := []float64{100, 98, 96, 94}
	for i, price := range prices {
		if err := store.Append(ctx, snap("widget", "amazon", price, base.AddDate(0, 0, i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := store.History(ctx, "widget", "amazon", base)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != len(prices) {
		t.Fatalf("History returned %d rows, want %d", len(all), len(prices))
	}
	for i, s := range all {
		if *s.Price != prices[i] {
			t.Errorf("row %d price = %v, want %v (oldest first)", i, *s.Price, prices[i])
		}
	}

	recent, err := store.History(ctx, "widget", "amazon", base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("windowed History returned %d rows, want 2", len(recent))
	}
	if *recent[0].Price != 96 {
		t.Errorf("windowed history starts at %v, want 96", *recent[0].Price)
	}
}

func TestProductsSorted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, name := range []string{"zebra", "apple", "mango", "apple"} {
		if err := store.Append(ctx, snap(name, "amazon", 10, at)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	names, err := store.Products(ctx)
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	want := []string{"apple", "mango", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("Products = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Products = %v, want %v", names, want)
		}
	}
}

func TestLatestPricesPerSite(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{100, 95} {
		if err := store.Append(ctx, snap("widget", "amazon", price, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, snap("widget", "bestbuy", 89, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, snap("gadget", "amazon", 10, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	latest, err := store.LatestPrices(ctx, "widget")
	if err != nil {
		t.Fatalf("LatestPrices: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestPrices returned %d sites, want 2", len(latest))
	}
	if *latest["amazon"].Price != 95 {
		t.Errorf("amazon latest = %v, want 95", *latest["amazon"].Price)
	}
	if *latest["bestbuy"].Price != 89 {
		t.Errorf("bestbuy latest = %v, want 89", *latest["bestbuy"].Price)
	}
}

func TestExportCSV(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, snap("widget", "amazon", 99.99, at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	noPrice := snap("widget", "bestbuy", 0, at)
	noPrice.Price = nil
	if err := store.Append(ctx, noPrice); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	if err := store.ExportCSV(ctx, &buf, "", time.Time{}); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("csv has %d rows, want header + 2", len(records))
	}
	if strings.Join(records[0], ",") != "product,site,price,title,url,availability,fetched_at" {
		t.Errorf("header = %v", records[0])
	}

	byPriceCell := map[string]bool{}
	for _, rec := range records[1:] {
		byPriceCell[rec[2]] = true
		if _, err := time.Parse(time.RFC3339, rec[6]); err != nil {
			t.Errorf("fetched_at %q is not RFC3339", rec[6])
		}
	}
	if !byPriceCell["99.99"] {
		t.Error("priced row missing 99.99 cell")
	}
	if !byPriceCell[""] {
		t.Error("nil price should export as an empty cell")
	}
}

func TestExportCSVSinceWindow(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{100, 95, 90} {
		if err := store.Append(ctx, snap("widget", "amazon", price, base.AddDate(0, 0, i*7))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := store.ExportCSV(ctx, &buf, "", base.AddDate(0, 0, 7)); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("csv has %d rows, want header + the 2 rows inside the window", len(records))
	}
}

func TestExportJSONFiltersByProduct(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, snap("widget", "amazon", 99.99, at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, snap("gadget", "amazon", 10, at)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	if err := store.ExportJSON(ctx, &buf, "widget", time.Time{}); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var records []struct {
		Product      string   `json:"product"`
		Site         string   `json:"site"`
		Price        *float64 `json:"price"`
		Availability string   `json:"availability"`
		FetchedAt    string   `json:"fetched_at"`
	}
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("parse exported json: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("json has %d records, want 1", len(records))
	}
	r := records[0]
	if r.Product != "widget" || r.Site != "amazon" {
		t.Errorf("record identity = %s@%s", r.Product, r.Site)
	}
	if r.Price == nil || *r.Price != 99.99 {
		t.Errorf("price = %v, want 99.99", r.Price)
	}
	if r.Availability != "available" {
		t.Errorf("availability = %q", r.Availability)
	}
	if _, err := time.Parse(time.RFC3339, r.FetchedAt); err != nil {
		t.Errorf("fetched_at %q is not RFC3339", r.FetchedAt)
	}
}
