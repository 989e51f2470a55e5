package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-intake/internal/domain/promotion"
)

// Columns of an import file, in order. product_ids is a non-empty list
// separated by '|'. A first row whose first column is "name" is treated as a header.
var columns = []string{"name", "code", "discount_type", "discount_value", "starts_at", "ends_at", "product_ids"}

// streamFile decodes a gzip-compressed CSV file and calls fn for each
// promotion. It returns the number of promotions passed to fn.
func streamFile(ctx context.Context, path string, fn func(promotion.Promotion) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return streamCSV(ctx, gz, fn)
}

func streamCSV(ctx context.Context, r io.Reader, fn func(promotion.Promotion) error) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var count int
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, errors.Wrap(err, "read csv")
		}
		if row == 1 && strings.EqualFold(rec[0], columns[0]) {
			continue
		}

		p, err := parseRecord(rec)
		if err != nil {
			return count, errors.Wrapf(err, "row %d", row)
		}
		if err := fn(p); err != nil {
			return count, err
		}
		count++
	}
}

func parseRecord(rec []string) (promotion.Promotion, error) {
	var p promotion.Promotion

	p.Name = strings.TrimSpace(rec[0])
	p.Code = strings.TrimSpace(rec[1])
	if p.Name == "" || p.Code == "" {
		return p, errors.New("name and code are required")
	}

	kind, err := promotion.ParseKind(rec[2])
	if err != nil {
		return p, err
	}
	p.Kind = kind

	p.Value, err = decimal.NewFromString(strings.TrimSpace(rec[3]))
	if err != nil {
		return p, errors.Wrap(err, "parse discount_value")
	}
	if p.Value.IsNegative() {
		return p, errors.Errorf("negative discount_value %s", p.Value)
	}

	if p.StartsAt, err = time.Parse(time.RFC3339, strings.TrimSpace(rec[4])); err != nil {
		return p, errors.Wrap(err, "parse starts_at")
	}
	if p.EndsAt, err = time.Parse(time.RFC3339, strings.TrimSpace(rec[5])); err != nil {
		return p, errors.Wrap(err, "parse ends_at")
	}
	if p.EndsAt.Before(p.StartsAt) {
		return p, errors.New("ends_at is before starts_at")
	}

	for _, id := range strings.Split(rec[6], "|") {
		if id = strings.TrimSpace(id); id != "" {
			p.ProductIDs = append(p.ProductIDs, id)
		}
	}
	if len(p.ProductIDs) == 0 {
		return p, errors.New("product_ids is empty")
	}
	return p, nil
}
