package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-intake/internal/domain/promotion"
	"github.com/xenking/order-intake/internal/repository"
)

const (
	defaultExpected = 1_000_000
	bloomFPR        = 0.001
	writeWorkers    = 4
	progressEvery   = 10_000
)

func main() {
	var (
		databaseURL string
		expected    uint
		replace     bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", defaultExpected, "expected number of distinct codes, sizes the bloom filter")
	flag.BoolVar(&replace, "replace", false, "overwrite promotions whose code is already stored")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: promo-import [flags] file.csv.gz...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, expected, replace); err != nil {
		slog.Error("promotion import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, expected uint, replace bool) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := repository.NewPromotionRepository(pool)
	seen := newCodeSet(expected, bloomFPR)

	if !replace {
		codes, err := repo.ListCodes(ctx)
		if err != nil {
			return errors.Wrap(err, "list stored codes")
		}
		for _, code := range codes {
			seen.Add(code)
		}
		slog.Info("loaded stored codes", slog.Int("count", len(codes)))
	}

	stats, err := importFiles(ctx, files, seen, repo.Upsert)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("read", stats.read.Load()),
		slog.Int64("written", stats.written.Load()),
		slog.Int64("duplicates", stats.duplicates.Load()),
		slog.Int("distinct_codes", seen.Len()),
		slog.Int("bloom_confirmations", seen.confirmations),
	)
	return nil
}

type upsertFunc func(ctx context.Context, p promotion.Promotion) (int64, error)

type importStats struct {
	read       atomic.Int64
	written    atomic.Int64
	duplicates atomic.Int64
}

// importFiles parses every file concurrently, drops codes already in seen
// and upserts the rest with a bounded pool of writers. A code repeated within
// or across files is written once, first come first served.
func importFiles(ctx context.Context, files []string, seen *codeSet, upsert upsertFunc) (*importStats, error) {
	stats := &importStats{}
	records := make(chan promotion.Promotion, 1024)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readers, rctx := errgroup.WithContext(ctx)
	for i, f := range files {
		readers.Go(func() error {
			n, err := streamFile(rctx, f, func(p promotion.Promotion) error {
				select {
				case records <- p:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read file %d", i+1)
			}
			slog.Info("file parsed", slog.String("path", f), slog.Int("records", n))
			return nil
		})
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- readers.Wait()
		close(records)
	}()

	writers, wctx := errgroup.WithContext(ctx)
	writers.SetLimit(writeWorkers)

	for p := range records {
		n := stats.read.Add(1)
		if n%progressEvery == 0 {
			slog.Info("import progress",
				slog.Int64("read", n),
				slog.Int64("written", stats.written.Load()),
			)
		}
		if !seen.Add(p.Code) {
			stats.duplicates.Add(1)
			slog.Debug("duplicate promotion code skipped", slog.String("code", p.Code))
			continue
		}
		if wctx.Err() != nil {
			// A write failed: stop the readers and drain what is buffered.
			cancel()
			continue
		}
		writers.Go(func() error {
			if _, err := upsert(wctx, p); err != nil {
				return errors.Wrapf(err, "upsert promotion %s", p.Code)
			}
			stats.written.Add(1)
			return nil
		})
	}

	werr := writers.Wait()
	rerr := <-readErr
	if werr != nil {
		return stats, werr
	}
	return stats, rerr
}

// normalizeCode is the key used for duplicate detection; stored codes are
// matched case-insensitively.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
