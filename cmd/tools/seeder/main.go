package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-caja/internal/config"
	"github.com/noah-isme/backend-caja/internal/promo"
	"github.com/noah-isme/backend-caja/internal/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(context.Background())

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := seedProviders(ctx, tx); err != nil {
			return err
		}
		if err := seedItems(ctx, tx, cfg.CurrencyScale); err != nil {
			return err
		}
		return seedPromotions(ctx, tx)
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Println("Seeding completed successfully!")
}

func seedProviders(ctx context.Context, tx pgx.Tx) error {
	providers := []struct {
		Ident string
		Name  string
	}{
		{"LALA", "Lala Lacteos"},
		{"BIMBO", "Panificadora Bimbo"},
		{"COCA", "Embotelladora Coca"},
		{"SABR", "Sabritas"},
	}

	log.Println("Seeding providers...")
	for _, p := range providers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO providers (ident, name) VALUES ($1, $2)
			ON CONFLICT (ident) DO UPDATE SET name = EXCLUDED.name`, p.Ident, p.Name); err != nil {
			return err
		}
	}
	return nil
}

func seedItems(ctx context.Context, tx pgx.Tx, scale uint8) error {
	items := []struct {
		Ident    string
		Name     string
		Price    int64
		Provider string
	}{
		{"7501020515343", "Leche entera 1L", 2650, "LALA"},
		{"7501020540666", "Yogurt fresa 1kg", 4890, "LALA"},
		{"7441029500112", "Pan blanco grande", 4500, "BIMBO"},
		{"7441029516236", "Medias noches 8pz", 3800, "BIMBO"},
		{"7501055300075", "Refresco cola 600ml", 1800, "COCA"},
		{"7501055310883", "Agua mineral 1.5L", 2100, "COCA"},
		{"7501011115583", "Papas saladas 45g", 1950, "SABR"},
		{"BOLSA", "Bolsa reutilizable", 1000, ""},
	}

	log.Println("Seeding items...")
	for _, it := range items {
		var provider *string
		if it.Provider != "" {
			p := it.Provider
			provider = &p
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO items (ident, name, unit_price_minor, price_scale, provider_ident)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ident) DO UPDATE SET
				name = EXCLUDED.name,
				unit_price_minor = EXCLUDED.unit_price_minor,
				price_scale = EXCLUDED.price_scale,
				provider_ident = EXCLUDED.provider_ident`,
			it.Ident, it.Name, it.Price, int16(scale), provider); err != nil {
			return err
		}
	}
	return nil
}

func seedPromotions(ctx context.Context, tx pgx.Tx) error {
	year := time.Now().Year()
	starts := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format(promo.DateLayout)
	ends := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).Format(promo.DateLayout)

	promotions := []struct {
		ID      int64
		Target  promo.TargetKind
		Ident   string
		Kind    promo.Kind
		Percent string
		Bundle  promo.Bundle
	}{
		{1, promo.TargetItem, "7501020515343", promo.KindPercent, "10", promo.Bundle{}},
		{2, promo.TargetProvider, "SABR", promo.KindPercent, "15", promo.Bundle{}},
		{3, promo.TargetItem, "7501055300075", promo.KindBundle, "0", promo.Bundle{MinimumQty: 2, FreeQty: 1}},
		{4, promo.TargetProvider, "BIMBO", promo.KindPercent, "5", promo.Bundle{}},
	}

	log.Println("Seeding promotions...")
	for _, p := range promotions {
		def, err := promo.NewPromotion(p.ID, p.Target, p.Ident, p.Kind, decimal.RequireFromString(p.Percent), p.Bundle, starts, ends, true)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO promotions (id, target, target_ident, kind, percent, minimum_qty, free_qty, starts, ends, enabled)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				target = EXCLUDED.target,
				target_ident = EXCLUDED.target_ident,
				kind = EXCLUDED.kind,
				percent = EXCLUDED.percent,
				minimum_qty = EXCLUDED.minimum_qty,
				free_qty = EXCLUDED.free_qty,
				starts = EXCLUDED.starts,
				ends = EXCLUDED.ends,
				enabled = EXCLUDED.enabled`,
			def.ID, string(def.Target), def.TargetIdent, string(def.Kind), def.Percent.String(),
			def.Bundle.MinimumQty, def.Bundle.FreeQty, def.Starts, def.Ends, def.Enabled); err != nil {
			return err
		}
	}
	_, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('promotions', 'id'), GREATEST((SELECT MAX(id) FROM promotions), 1))`)
	return err
}
