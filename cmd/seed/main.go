// Command seed fills the catalog and user tables with demo data. It is safe
// to run repeatedly: rows are upserted by slug and email.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/adexify/internal/config"
	"github.com/utafrali/adexify/migrations"
	"github.com/utafrali/adexify/pkg/database"
	"github.com/utafrali/adexify/pkg/logger"
)

type productDef struct {
	name        string
	description string
	category    string
	price       int64 // kobo
	stock       int
}

// batcher is the part of *pgxpool.Pool the seeders need.
type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type userDef struct {
	email     string
	firstName string
	lastName  string
	role      string
}

var products = []productDef{
	{"Ankara Wrap Dress", "Midi wrap dress in bold wax print cotton with a tie waist.", "dresses", 2500000, 40},
	{"Adire Maxi Dress", "Hand-dyed indigo maxi dress with flutter sleeves.", "dresses", 3200000, 25},
	{"Linen Shirt Dress", "Relaxed linen shirt dress with a detachable belt.", "dresses", 1850000, 30},
	{"Classic Cotton Tee", "Everyday crew neck tee in heavyweight organic cotton.", "tops", 650000, 120},
	{"Kaftan Top", "Loose embroidered kaftan top in breathable voile.", "tops", 1200000, 60},
	{"Pleated Palazzo Trousers", "High-waisted wide-leg trousers with knife pleats.", "bottoms", 1500000, 45},
	{"Denim Midi Skirt", "A-line midi skirt in rigid denim with front slit.", "bottoms", 1400000, 35},
	{"Leather Tote Bag", "Full-grain leather tote with an inside zip pocket.", "accessories", 4500000, 15},
	{"Beaded Statement Necklace", "Handmade glass bead necklace in coral tones.", "accessories", 800000, 50},
	{"Silk Head Wrap", "Pure silk head wrap, 180cm long.", "accessories", 550000, 80},
	{"Woven Raffia Sandals", "Flat sandals with woven raffia straps and a cushioned sole.", "shoes", 1750000, 28},
	{"Block Heel Mules", "Square-toe mules on a 6cm block heel.", "shoes", 2200000, 20},
}

var users = []userDef{
	{"admin@adexify.test", "Ada", "Obi", "admin"},
	{"shopper@adexify.test", "Tolu", "Bello", "customer"},
}

func sizesFor(category string) []string {
	switch category {
	case "dresses", "tops", "bottoms":
		return []string{"S", "M", "L", "XL"}
	case "shoes":
		return []string{"37", "38", "39", "40", "41"}
	default:
		return []string{}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("adexify-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	n, err := seedProducts(ctx, pool)
	if err != nil {
		return err
	}
	log.Info("seeded products", slog.Int("count", n))

	n, err = seedUsers(ctx, pool)
	if err != nil {
		return err
	}
	log.Info("seeded users", slog.Int("count", n))
	return nil
}

func seedProducts(ctx context.Context, db batcher) (int, error) {
	const q = `INSERT INTO products (id, name, slug, description, category, price, stock, images, sizes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			sizes = EXCLUDED.sizes,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, p := range products {
		s := slug.Make(p.name)
		images, err := json.Marshal([]string{fmt.Sprintf("/images/products/%s.jpg", s)})
		if err != nil {
			return 0, err
		}
		sizes, err := json.Marshal(sizesFor(p.category))
		if err != nil {
			return 0, err
		}
		batch.Queue(q, uuid.NewString(), p.name, s, p.description, p.category, p.price, p.stock, images, sizes)
	}
	return sendBatch(ctx, db, batch, "product")
}

func seedUsers(ctx context.Context, db batcher) (int, error) {
	const q = `INSERT INTO users (id, email, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(q, uuid.NewString(), u.email, u.firstName, u.lastName, u.role)
	}
	return sendBatch(ctx, db, batch, "user")
}

func sendBatch(ctx context.Context, db batcher, batch *pgx.Batch, what string) (int, error) {
	br := db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upsert %s %d: %w", what, i, err)
		}
	}
	return batch.Len(), nil
}
