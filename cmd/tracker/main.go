package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"price-tracker/config"
	"price-tracker/internal/extract"
	"price-tracker/internal/fetch"
	"price-tracker/internal/history"
	"price-tracker/internal/models"
	"price-tracker/internal/notify"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/scraper"
	"price-tracker/internal/tracker"
)

func main() {
	trackArg := flag.Bool("track", false, "run one tracking pass over all configured products")
	scheduleArg := flag.Bool("schedule", false, "keep running tracking passes on the configured interval")
	summaryArg := flag.Bool("summary", false, "print the latest known price per product and site")
	exportArg := flag.String("export", "", "export price history: csv or json")
	productArg := flag.String("product", "", "restrict track/export to one product name")
	daysArg := flag.Int("days", 0, "limit exports to the last N days (0 exports everything)")
	outDirArg := flag.String("out", "data/outputs", "directory for exported files")
	flag.Parse()

	if !*trackArg && !*scheduleArg && !*summaryArg && *exportArg == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	products, err := config.LoadProducts(cfg.ProductsFile)
	if err != nil {
		log.Fatalf("Failed to load watchlist: %v", err)
	}
	if *productArg != "" {
		products = filterProducts(products, *productArg)
		if len(products) == 0 {
			log.Fatalf("Product %q not found in %s", *productArg, cfg.ProductsFile)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	t := tracker.New(
		scraper.New(
			extract.NewRegistry(),
			fetch.NewClient(fetch.WithTimeout(cfg.RequestTimeout)),
			scraper.WithMaxRetries(cfg.MaxRetries),
			scraper.WithRequestInterval(cfg.RequestInterval),
		),
		store,
		buildNotifier(cfg),
		models.Thresholds{DropPercent: cfg.DropPercent, DropAmount: cfg.DropAmount},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0

	if *trackArg {
		result := t.Run(ctx, products)
		if result.Status == models.RunCompletedWithErrors {
			exitCode = 1
		}
	}

	if *scheduleArg {
		sched := scheduler.New(cfg.ScrapeInterval, func(ctx context.Context) models.RunResult {
			return t.Run(ctx, products)
		})
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Scheduler failed: %v", err)
		}
	}

	if *summaryArg {
		if err := printSummary(ctx, store); err != nil {
			log.Printf("Failed to print summary: %v", err)
			exitCode = 1
		}
	}

	if *exportArg != "" {
		if err := exportData(ctx, store, *exportArg, *outDirArg, *productArg, *daysArg); err != nil {
			log.Printf("Export failed: %v", err)
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers notify.Multi

	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("Telegram notifier disabled: %v", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	if cfg.EmailSender != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(
			cfg.SMTPHost, cfg.SMTPPort, cfg.EmailSender, cfg.EmailPassword, cfg.EmailReceiver,
		))
	}

	if len(notifiers) == 0 {
		log.Println("No notification channel configured; alerts will only be logged")
		return nil
	}
	return notifiers
}

func filterProducts(products []models.Product, name string) []models.Product {
	for _, p := range products {
		if p.Name == name {
			return []models.Product{p}
		}
	}
	return nil
}

func printSummary(ctx context.Context, store *history.SQLiteStore) error {
	names, err := store.Products(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No products are currently being tracked.")
		return nil
	}

	for _, name := range names {
		latest, err := store.LatestPrices(ctx, name)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			continue
		}
		fmt.Printf("📦 %s\n", name)
		for site, snap := range latest {
			price := "n/a"
			if snap.Price != nil {
				price = fmt.Sprintf("$%.2f", *snap.Price)
			}
			fmt.Printf("  %-12s %8s  %s  (updated %s)\n",
				site, price, snap.Availability, snap.FetchedAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}

func exportData(ctx context.Context, store *history.SQLiteStore, format, outDir, product string, days int) error {
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	var since time.Time
	if days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -days)
	}

	name := "all_products"
	if product != "" {
		name = product
	}
	path := filepath.Join(outDir, fmt.Sprintf("%s_%s.%s", sanitizeFilename(name), time.Now().Format("20060102_150405"), format))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if format == "csv" {
		err = store.ExportCSV(ctx, f, product, since)
	} else {
		err = store.ExportJSON(ctx, f, product, since)
	}
	if err != nil {
		return err
	}
	log.Printf("Data exported to %s", path)
	return nil
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
