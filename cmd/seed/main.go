package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/kiwari-pos/ordercore/internal/auth"
	"github.com/kiwari-pos/ordercore/internal/config"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/logger"
	"github.com/rs/zerolog/log"
)

type seedProduct struct {
	name  string
	price string
	stock int32
}

var products = []seedProduct{
	{"Kopi Kenangan Mantan", "18000", 100},
	{"Roti O Original", "12000", 50},
	{"Mineral Water 600ml", "5000", 200},
}

func main() {
	outletName := flag.String("outlet", "Toko Pusat Ardiyansyah", "Outlet name")
	address := flag.String("address", "Jl. Merdeka No. 1, Bandung", "Outlet address")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev token; 0 disables it")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Setup("seed", cfg.LogLevel, "console")

	ctx := context.Background()
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	// Outlet and products commit together or not at all.
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	outletID, err := seedOutlet(ctx, tx, *outletName, *address)
	if err != nil {
		log.Fatal().Err(err).Msg("seed outlet")
	}
	for _, p := range products {
		if err := seedProductRow(ctx, tx, outletID, p); err != nil {
			log.Fatal().Err(err).Str("product", p.name).Msg("seed product")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("commit")
	}

	log.Info().Str("outlet_id", outletID.String()).Msg("seed completed")

	if *tokenTTL > 0 {
		token, err := auth.GenerateToken(cfg.JWTSecret, uuid.New(), outletID, enum.UserRoleOwner, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("generate dev token")
		}
		fmt.Fprintf(os.Stdout, "OUTLET_ID=%s\nAGENT_TOKEN=%s\n", outletID, token)
	}
}

// seedOutlet returns the outlet with this name, creating it if missing.
func seedOutlet(ctx context.Context, tx pgx.Tx, name, address string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM outlets WHERE name = $1 LIMIT 1`, name).Scan(&id)
	if err == nil {
		log.Info().Str("outlet", name).Str("id", id.String()).Msg("outlet exists, skipping")
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check outlet: %w", err)
	}

	err = tx.QueryRow(ctx, `INSERT INTO outlets (name, address) VALUES ($1, $2) RETURNING id`, name, address).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outlet: %w", err)
	}
	log.Info().Str("outlet", name).Str("id", id.String()).Msg("created outlet")
	return id, nil
}

// seedProductRow inserts the product, or tops its stock back up to the seed
// level if it already exists.
func seedProductRow(ctx context.Context, tx pgx.Tx, outletID uuid.UUID, p seedProduct) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products SET price = $3, stock = GREATEST(stock, $4), updated_at = now()
		WHERE outlet_id = $1 AND name = $2`,
		outletID, p.name, p.price, p.stock)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Str("product", p.name).Msg("product exists, stock topped up")
		return nil
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO products (outlet_id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		outletID, p.name, p.price, p.stock).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	log.Info().Str("product", p.name).Str("id", id.String()).Int32("stock", p.stock).Msg("created product")
	return nil
}
