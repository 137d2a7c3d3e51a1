package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog CSV files and inserts or restocks products.
//
// Expected header (order is free, unknown columns are ignored):
//
//	id,key,name,description,brand,image,price,stock
type CSVImporter struct {
	reader   *csv.Reader
	products ProductWriter
	logger   *zap.Logger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, logger *zap.Logger) *CSVImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:   csvr,
		products: repo,
		logger:   logger,
	}
}

// Result counts what a run did.
type Result struct {
	Imported int
	Skipped  int
}

var required = []string{"key", "name", "price"}

// Run upserts one product per data row. Blank rows are skipped; a malformed
// row stops the run with the line number in the error.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result

	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return res, fmt.Errorf("missing column %q", col)
		}
	}

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)

		if blank(record) {
			res.Skipped++
			continue
		}
		p, err := parseRow(record, index)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		saved, err := i.products.Upsert(ctx, p)
		if err != nil {
			return res, fmt.Errorf("line %d: upsert product %q: %w", line, p.Key, err)
		}
		i.logger.Debug("importer: product saved", zap.String("key", saved.Key), zap.Int("stock", saved.Stock))
		res.Imported++
	}

	return res, nil
}

func parseRow(record []string, index map[string]int) (domain.Product, error) {
	p := domain.Product{
		ID:          pick(record, index, "id"),
		Key:         pick(record, index, "key"),
		Name:        pick(record, index, "name"),
		Description: pick(record, index, "description"),
		Brand:       pick(record, index, "brand"),
		ImageRef:    pick(record, index, "image"),
	}
	if p.Key == "" || p.Name == "" {
		return p, errors.New("key and name are required")
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return p, fmt.Errorf("invalid id %q for key %q", p.ID, p.Key)
		}
	}

	price, err := decimal.NewFromString(pick(record, index, "price"))
	if err != nil {
		return p, fmt.Errorf("invalid price for key %q: %w", p.Key, err)
	}
	if price.IsNegative() {
		return p, fmt.Errorf("negative price for key %q", p.Key)
	}
	p.Price = price.Round(2)

	if raw := pick(record, index, "stock"); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil || stock < 0 {
			return p, fmt.Errorf("invalid stock %q for key %q", raw, p.Key)
		}
		p.Stock = stock
	}
	return p, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
