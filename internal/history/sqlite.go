package history

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"price-tracker/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id   INTEGER NOT NULL,
	site         TEXT NOT NULL,
	price        REAL,
	title        TEXT,
	url          TEXT NOT NULL,
	availability TEXT NOT NULL DEFAULT 'unknown',
	fetched_at   TIMESTAMP NOT NULL,
	FOREIGN KEY (product_id) REFERENCES products(id)
);

CREATE INDEX IF NOT EXISTS idx_price_history_product
	ON price_history(product_id, site, fetched_at);
`

// SQLiteStore keeps the price time series in a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens (and initializes) the store at path. ":memory:" works for
// tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type snapshotRow struct {
	Product      string          `db:"product"`
	Site         string          `db:"site"`
	Price        sql.NullFloat64 `db:"price"`
	Title        sql.NullString  `db:"title"`
	URL          string          `db:"url"`
	Availability string          `db:"availability"`
	FetchedAt    time.Time       `db:"fetched_at"`
}

func (r snapshotRow) snapshot() models.Snapshot {
	snap := models.Snapshot{
		Product:      r.Product,
		Site:         r.Site,
		Title:        r.Title.String,
		URL:          r.URL,
		Availability: parseAvailability(r.Availability),
		FetchedAt:    r.FetchedAt.UTC(),
	}
	if r.Price.Valid {
		price := r.Price.Float64
		snap.Price = &price
	}
	return snap
}

func parseAvailability(s string) models.Availability {
	switch s {
	case "available":
		return models.Available
	case "unavailable":
		return models.Unavailable
	default:
		return models.AvailabilityUnknown
	}
}

// Append inserts a snapshot, creating the product row on first sight.
func (s *SQLiteStore) Append(ctx context.Context, snap models.Snapshot) error {
	productID, err := s.productID(ctx, snap.Product)
	if err != nil {
		return err
	}

	var price interface{}
	if snap.Price != nil {
		price = *snap.Price
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO price_history (product_id, site, price, title, url, availability, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		productID, snap.Site, price, snap.Title, snap.URL, snap.Availability.String(), snap.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append snapshot for %s@%s: %w", snap.Product, snap.Site, err)
	}
	return nil
}

func (s *SQLiteStore) productID(ctx context.Context, name string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO products (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("upsert product %q: %w", name, err)
	}
	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM products WHERE name = ?`, name); err != nil {
		return 0, fmt.Errorf("lookup product %q: %w", name, err)
	}
	return id, nil
}

// Latest returns the newest snapshot for the pair, by insertion order.
func (s *SQLiteStore) Latest(ctx context.Context, product, site string) (*models.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT p.name AS product, ph.site, ph.price, ph.title, ph.url, ph.availability, ph.fetched_at
		FROM price_history ph
		JOIN products p ON ph.product_id = p.id
		WHERE p.name = ? AND ph.site = ?
		ORDER BY ph.id DESC LIMIT 1`,
		product, site,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s@%s: %w", product, site, err)
	}
	snap := row.snapshot()
	return &snap, nil
}

// History returns snapshots recorded at or after since, oldest first.
func (s *SQLiteStore) History(ctx context.Context, product, site string, since time.Time) ([]models.Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.name AS product, ph.site, ph.price, ph.title, ph.url, ph.availability, ph.fetched_at
		FROM price_history ph
		JOIN products p ON ph.product_id = p.id
		WHERE p.name = ? AND ph.site = ? AND ph.fetched_at >= ?
		ORDER BY ph.id ASC`,
		product, site, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("history for %s@%s: %w", product, site, err)
	}
	snaps := make([]models.Snapshot, 0, len(rows))
	for _, r := range rows {
		snaps = append(snaps, r.snapshot())
	}
	return snaps, nil
}

// Products lists all tracked product names, sorted.
func (s *SQLiteStore) Products(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM products ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return names, nil
}

// LatestPrices returns the newest snapshot per site for one product.
func (s *SQLiteStore) LatestPrices(ctx context.Context, product string) (map[string]models.Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.name AS product, ph.site, ph.price, ph.title, ph.url, ph.availability, ph.fetched_at
		FROM price_history ph
		JOIN products p ON ph.product_id = p.id
		WHERE p.name = ? AND ph.id IN (
			SELECT MAX(ph2.id)
			FROM price_history ph2
			JOIN products p2 ON ph2.product_id = p2.id
			WHERE p2.name = ?
			GROUP BY ph2.site
		)`,
		product, product,
	)
	if err != nil {
		return nil, fmt.Errorf("latest prices for %s: %w", product, err)
	}
	latest := make(map[string]models.Snapshot, len(rows))
	for _, r := range rows {
		latest[r.Site] = r.snapshot()
	}
	return latest, nil
}

const exportQuery = `
	SELECT p.name AS product, ph.site, ph.price, ph.title, ph.url, ph.availability, ph.fetched_at
	FROM price_history ph
	JOIN products p ON ph.product_id = p.id
	WHERE 1=1 %s
	ORDER BY p.name, ph.id DESC`

func (s *SQLiteStore) exportRows(ctx context.Context, product string, since time.Time) ([]snapshotRow, error) {
	clauses := ""
	args := []interface{}{}
	if product != "" {
		clauses += " AND p.name = ?"
		args = append(args, product)
	}
	if !since.IsZero() {
		clauses += " AND ph.fetched_at >= ?"
		args = append(args, since.UTC())
	}

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, fmt.Sprintf(exportQuery, clauses), args...); err != nil {
		return nil, fmt.Errorf("export query: %w", err)
	}
	return rows, nil
}

// ExportCSV writes the price history as CSV, optionally limited to one
// product and to rows fetched at or after since (zero means all).
func (s *SQLiteStore) ExportCSV(ctx context.Context, w io.Writer, product string, since time.Time) error {
	rows, err := s.exportRows(ctx, product, since)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"product", "site", "price", "title", "url", "availability", "fetched_at"}); err != nil {
		return err
	}
	for _, r := range rows {
		price := ""
		if r.Price.Valid {
			price = strconv.FormatFloat(r.Price.Float64, 'f', 2, 64)
		}
		record := []string{r.Product, r.Site, price, r.Title.String, r.URL, r.Availability, r.FetchedAt.UTC().Format(time.RFC3339)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type exportRecord struct {
	Product      string   `json:"product"`
	Site         string   `json:"site"`
	Price        *float64 `json:"price"`
	Title        string   `json:"title,omitempty"`
	URL          string   `json:"url"`
	Availability string   `json:"availability"`
	FetchedAt    string   `json:"fetched_at"`
}

// ExportJSON writes the price history as a JSON array, with the same
// product and since filters as ExportCSV.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer, product string, since time.Time) error {
	rows, err := s.exportRows(ctx, product, since)
	if err != nil {
		return err
	}

	records := make([]exportRecord, 0, len(rows))
	for _, r := range rows {
		rec := exportRecord{
			Product:      r.Product,
			Site:         r.Site,
			Title:        r.Title.String,
			URL:          r.URL,
			Availability: r.Availability,
			FetchedAt:    r.FetchedAt.UTC().Format(time.RFC3339),
		}
		if r.Price.Valid {
			price := r.Price.Float64
			rec.Price = &price
		}
		records = append(records, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
