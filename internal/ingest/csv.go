package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
)

// pendingID stands in for a missing id until the record is parsed.
const pendingID = "\x00pending"

// CSVParser reads a header row of flat field names followed by one
// transaction per row.
type CSVParser struct {
	opts Options
}

// NewCSVParser creates a CSV parser.
func NewCSVParser(opts Options) *CSVParser {
	return &CSVParser{opts: opts}
}

// ParseFile implements Parser. Rows that fail to parse are skipped with a
// warning; the file fails only when no row survives.
func (p *CSVParser) ParseFile(ctx context.Context, r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, common.ParseError("csv header", errors.New("empty file"))
	}
	if err != nil {
		return nil, common.ParseError("csv header", err)
	}
	columns := normalizeHeader(header)

	var (
		out     []model.Transaction
		skipped int
		line    = 1
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, common.ParseError(fmt.Sprintf("csv line %d", line), err)
		}
		if blank(record) {
			continue
		}

		txn, err := p.parseRow(columns, record)
		if err != nil {
			skipped++
			slog.Warn("Skipping CSV row", "line", line, "error", err)
			continue
		}
		out = append(out, txn)
	}

	if len(out) == 0 && skipped > 0 {
		return nil, common.ParseError("csv rows", fmt.Errorf("all %d rows were invalid", skipped))
	}
	slog.Info("Parsed CSV file", "transactions", len(out), "skipped", skipped)
	return out, nil
}

func (p *CSVParser) parseRow(columns, record []string) (model.Transaction, error) {
	if len(record) > len(columns) {
		return model.Transaction{}, fmt.Errorf("%d cells for %d columns", len(record), len(columns))
	}
	raw := make(map[string]any, len(columns))
	for i, cell := range record {
		if cell = strings.TrimSpace(cell); cell != "" && columns[i] != "" {
			raw[columns[i]] = cell
		}
	}
	if _, ok := raw[model.FieldTransactionID]; !ok {
		raw[model.FieldTransactionID] = pendingID
	}

	txn, err := model.TransactionFromMap(raw)
	if err != nil {
		return model.Transaction{}, err
	}
	if txn.ID == pendingID {
		txn.ID = ""
	}
	if txn.CustomerID == "" {
		txn.CustomerID = p.opts.CustomerID
	}
	assignID(&txn)
	return txn, nil
}

// normalizeHeader maps header cells to flat field names: lower case, spaces
// to underscores, byte order mark dropped.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ToLower(strings.TrimSpace(h))
		out[i] = strings.Join(strings.Fields(h), "_")
	}
	return out
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
