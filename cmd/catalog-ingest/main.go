// Command catalog-ingest loads gzipped supplier catalog feeds into the
// products table. Feeds are tab-separated shards with one product per line:
//
//	id<TAB>name<TAB>description<TAB>price<TAB>category<TAB>image
//
// Shards routinely repeat rows (suppliers resend full catalogs), so a bloom
// filter drops already-seen ids without holding every id in memory. The
// filter's false positive rate can skip a fresh row once in ~1000 ids; feeds
// are idempotent and re-delivered, so a skipped row arrives with the next run.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/playtopia/storefront/internal/domain/catalog"
	"github.com/playtopia/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	fieldCount    = 6
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog-*.gz feed shards")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "catalog-*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed shards")
	}
	if len(files) == 0 {
		return errors.Errorf("no catalog-*.gz shards in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewProductRepository(pool)

	// Shards are parsed concurrently; a single writer owns the bloom filter
	// and the database upserts, so no locking is needed around either.
	rows := make(chan catalog.Product, 1024)

	g, ctx := errgroup.WithContext(ctx)

	var parsers errgroup.Group
	for _, f := range files {
		parsers.Go(parseShard(ctx, f, rows))
	}
	g.Go(func() error {
		defer close(rows)
		return parsers.Wait()
	})
	g.Go(writeProducts(ctx, repo, rows))

	return g.Wait()
}

// parseShard streams one gzipped shard and sends parsed products to out.
func parseShard(ctx context.Context, path string, out chan<- catalog.Product) func() error {
	return func() error {
		name := filepath.Base(path)
		var lineNo, parsed uint64

		err := streamGzFile(ctx, path, func(line string) error {
			lineNo++
			if line == "" {
				return nil
			}

			p, err := parseLine(line)
			if err != nil {
				// Bad rows are logged and skipped, not fatal: one supplier
				// typo should not block the whole feed.
				slog.Warn("skipping bad row",
					slog.String("shard", name),
					slog.Uint64("line", lineNo),
					slog.String("error", err.Error()),
				)
				return nil
			}

			parsed++
			if parsed%progressEvery == 0 {
				slog.Info("parse progress", slog.String("shard", name), slog.Uint64("rows", parsed))
			}

			select {
			case out <- p:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "parse shard %s", name)
		}

		slog.Info("shard complete", slog.String("shard", name), slog.Uint64("rows", parsed))
		return nil
	}
}

func parseLine(line string) (catalog.Product, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return catalog.Product{}, errors.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}
	if fields[0] == "" || fields[1] == "" {
		return catalog.Product{}, errors.New("id and name are required")
	}

	price, err := decimal.NewFromString(fields[3])
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "parse price")
	}
	if price.IsNegative() {
		return catalog.Product{}, errors.New("negative price")
	}

	return catalog.Product{
		ID:          fields[0],
		Name:        fields[1],
		Description: fields[2],
		Price:       price,
		Category:    fields[4],
		Image:       fields[5],
	}, nil
}

// writeProducts upserts deduplicated products. First occurrence wins across
// all shards.
func writeProducts(ctx context.Context, repo *postgres.ProductRepository, rows <-chan catalog.Product) func() error {
	return func() error {
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var written, dropped uint64

		for p := range rows {
			if seen.TestOrAddString(p.ID) {
				dropped++
				continue
			}

			if err := repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}

			written++
			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Uint64("written", written), slog.Uint64("duplicates", dropped))
			}
		}

		slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("duplicates", dropped))
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
