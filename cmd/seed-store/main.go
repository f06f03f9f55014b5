// Command seed-store loads the toy catalog, a development API key, and demo
// account data into the database. Safe to re-run: products and the API key
// are upserted, demo documents are only written when the demo user has none.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/playtopia/storefront/db"
	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/account"
	"github.com/playtopia/storefront/internal/domain/catalog"
	"github.com/playtopia/storefront/internal/storage/postgres"
	"github.com/playtopia/storefront/internal/store"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		demoUser     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (default: embedded catalog)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&demoUser, "demo-user", "demo-user", "user id that owns the demo addresses and payment methods")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STORE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STORE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper, demoUser); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper, demoUser string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper, demoUser); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if err := seedDemoAccount(ctx, postgres.NewDocumentStore(pool), demoUser); err != nil {
		return errors.Wrap(err, "seed demo account")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		var err error
		data, err = os.ReadFile(productsFile)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	static, err := catalog.NewStaticRepository(data)
	if err != nil {
		return err
	}
	products, err := static.List(ctx)
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper, userID string) error {
	slog.Info("seeding development API key", slog.String("user", userID))

	keyHash := auth.HashKey([]byte(pepper), apiKey)
	if err := repo.Insert(ctx, userID, keyHash, "Development key"); err != nil {
		return errors.Wrap(err, "insert API key")
	}

	return nil
}

// seedDemoAccount gives the demo user one default address and a saved card so
// a fresh environment can check out immediately.
func seedDemoAccount(ctx context.Context, docs *postgres.DocumentStore, userID string) error {
	existing, err := docs.List(ctx, store.CollectionAddresses, store.ByUser(userID))
	if err != nil {
		return errors.Wrap(err, "list demo addresses")
	}
	if len(existing) > 0 {
		slog.Info("demo account already seeded", slog.String("user", userID))
		return nil
	}

	accounts := account.NewService(docs)

	addresses := []account.Address{
		{
			UserID:     userID,
			Label:      "Home",
			Street:     "12 Oak Lane",
			City:       "Springfield",
			PostalCode: "62704",
			Phone:      "555-0101",
		},
		{
			UserID:     userID,
			Label:      "Work",
			Street:     "90 Pine Road",
			City:       "Springfield",
			PostalCode: "62705",
			Phone:      "555-0102",
		},
	}
	for _, a := range addresses {
		saved, err := accounts.SaveAddress(ctx, a)
		if err != nil {
			return errors.Wrapf(err, "save address %s", a.Label)
		}
		slog.Info("seeded address",
			slog.String("id", saved.ID),
			slog.String("label", saved.Label),
			slog.Bool("default", saved.IsDefault),
		)
	}

	card := account.PaymentMethod{
		UserID: userID,
		Label:  "Visa",
		Last4:  "4242",
		Expiry: "12/27",
	}
	saved, err := accounts.SavePaymentMethod(ctx, card)
	if err != nil {
		return errors.Wrap(err, "save payment method")
	}
	slog.Info("seeded payment method", slog.String("id", saved.ID), slog.String("label", saved.Label))

	return nil
}
