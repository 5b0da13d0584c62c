package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
)

const (
	pagePrefix = "transactions_risk_"
	statsName  = "transaction_stats"
	jsonExt    = ".json"
)

// Key identifies one cached page. An empty CustomerID is the whole dataset.
type Key struct {
	CustomerID string
	Page       int
}

// escapeID makes a customer id safe for a file name. Letters, digits, '_'
// and '-' are kept; every other byte becomes '.' and two hex digits, so
// distinct ids never share a file.
func escapeID(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, ".%02x", c)
		}
	}
	return b.String()
}

// scope is the file name fragment shared by every page of the key's scope.
func (k Key) scope() string {
	if k.CustomerID == "" {
		return pagePrefix + "page_"
	}
	return pagePrefix + escapeID(k.CustomerID) + "_page_"
}

// PageFile is the file name of the key's page, e.g. transactions_risk_page_2.json.
func (k Key) PageFile() string {
	return k.scope() + strconv.Itoa(k.Page) + jsonExt
}

// StatsFile is the file name of the key's aggregate stats.
func (k Key) StatsFile() string {
	if k.CustomerID == "" {
		return statsName + jsonExt
	}
	return statsName + "_" + escapeID(k.CustomerID) + jsonExt
}

// scopePages lists the page files cached for the key's scope.
func (k Key) scopePages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	prefix := k.scope()
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		n := strings.TrimSuffix(strings.TrimPrefix(name, prefix), jsonExt)
		if _, err := strconv.Atoi(n); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// readPage decodes a page file. A missing file returns fs.ErrNotExist; any
// decode failure wraps common.ErrParse.
func readPage(path string) ([]model.Transaction, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a sanitized key
	if err != nil {
		return nil, err
	}
	var txs []model.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrParse, filepath.Base(path), err)
	}
	if txs == nil {
		return nil, fmt.Errorf("%w: %s: empty document", common.ErrParse, filepath.Base(path))
	}
	return txs, nil
}

func readStats(path string) (model.Stats, error) {
	var stats model.Stats
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a sanitized key
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("%w: %s: %w", common.ErrParse, filepath.Base(path), err)
	}
	return stats, nil
}

// writeJSON writes v through a temp file and a rename so readers never see a
// partial document.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// removeFile deletes path, ignoring a file that is already gone.
func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove cache file", "path", path, "error", err)
	}
}
