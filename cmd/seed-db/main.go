package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-intake/db"
	"github.com/xenking/order-intake/internal/domain/product"
	"github.com/xenking/order-intake/internal/domain/promotion"
	"github.com/xenking/order-intake/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type promotionJSON struct {
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	StartsAt      time.Time       `json:"starts_at"`
	EndsAt        time.Time       `json:"ends_at"`
	ProductIDs    []string        `json:"product_ids"`
}

func main() {
	var (
		databaseURL    string
		productsFile   string
		promotionsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (embedded catalog if empty)")
	flag.StringVar(&promotionsFile, "promotions-file", "", "path to promotions JSON file (embedded set if empty)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, promotionsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, promotionsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, repository.NewPromotionRepository(pool), promotionsFile); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	return nil
}

// readSeed returns the file contents, or fallback when path is empty.
func readSeed(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	slog.Info("reading seed file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, path string) error {
	data, err := readSeed(path, db.SeedProducts)
	if err != nil {
		return err
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.Stock < 0 {
			return errors.Errorf("product %s has negative stock %d", p.ID, p.Stock)
		}
		if err := repo.Upsert(ctx, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *repository.PromotionRepository, path string) error {
	data, err := readSeed(path, db.SeedPromotions)
	if err != nil {
		return err
	}

	var promotions []promotionJSON
	if err := json.Unmarshal(data, &promotions); err != nil {
		return errors.Wrap(err, "parse promotions JSON")
	}

	slog.Info("upserting promotions", slog.Int("count", len(promotions)))

	for _, p := range promotions {
		kind, err := promotion.ParseKind(p.DiscountType)
		if err != nil {
			return errors.Wrapf(err, "promotion %s", p.Code)
		}

		id, err := repo.Upsert(ctx, promotion.Promotion{
			Name:       p.Name,
			Code:       p.Code,
			Kind:       kind,
			Value:      p.DiscountValue,
			StartsAt:   p.StartsAt,
			EndsAt:     p.EndsAt,
			ProductIDs: p.ProductIDs,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.Code)
		}

		slog.Info("upserted promotion",
			slog.Int64("id", id),
			slog.String("code", p.Code),
			slog.String("name", p.Name),
		)
	}

	return nil
}
