// Package ingest reads transaction exports into typed records.
package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
)

// Parser turns one export file into transactions.
type Parser interface {
	ParseFile(ctx context.Context, r io.Reader) ([]model.Transaction, error)
}

// Options apply to every record a parser produces.
type Options struct {
	// CustomerID is stamped on records that carry none.
	CustomerID string
}

// ForPath picks a parser from the file extension.
func ForPath(path string, opts Options) (Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return NewCSVParser(opts), nil
	case ".ofx", ".qfx":
		return NewOFXParser(opts), nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrInvalidInput, ext)
	}
}

// assignID gives a record without an id a stable one when it has a
// timestamp and a random one otherwise.
func assignID(t *model.Transaction) {
	if t.ID != "" {
		return
	}
	if t.Timestamp != nil {
		t.ID = t.GenerateHash()
		return
	}
	t.ID = uuid.NewString()
}
