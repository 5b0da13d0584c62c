package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Veraticus/riskdesk/internal/model"
)

// DefaultRules seeds a new rule file.
var DefaultRules = []string{
	FormatLine(1, "transaction_amount > 50000", 70, model.CategoryHigh, "Unusually large transaction amount"),
	FormatLine(2, "smurfing_indicator == 1", 80, model.CategoryHigh, "Potential structuring/smurfing behavior detected"),
	FormatLine(3, "previous_fraud_flag == 1", 90, model.CategoryVeryHigh, "Account previously involved in fraudulent activity"),
	FormatLine(4, "account_age_days < 30", 60, model.CategoryMedium, "Account is relatively new"),
	FormatLine(5, "kyc_status == 'NONE'", 50, model.CategoryMedium, "Account has no KYC verification"),
	FormatLine(6, "new_balance < 0", 70, model.CategoryHigh, "Transaction resulted in negative balance"),
	FormatLine(7, "label_for_fraud == 1", 95, model.CategoryVeryHigh, "Transaction explicitly flagged as fraudulent"),
}

// Store is an ordered, line-based rule list. It keeps an in-memory snapshot
// so a request sees one consistent rule set, and appends are written through
// to disk atomically.
type Store struct {
	path   string
	text   string
	parsed []model.Rule
	mu     sync.RWMutex
}

// Open loads the rule file at path, creating it with DefaultRules if absent.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("rule store path is required")
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	switch {
	case errors.Is(err, os.ErrNotExist):
		text := strings.Join(DefaultRules, "\n") + "\n"
		if err := writeAtomic(path, text); err != nil {
			return nil, fmt.Errorf("failed to seed rule store: %w", err)
		}
		slog.Info("Created rule store with default rules", "path", path, "rules", len(DefaultRules))
		data = []byte(text)
	case err != nil:
		return nil, fmt.Errorf("failed to read rule store: %w", err)
	}

	s := &Store{path: path}
	s.setText(string(data))
	return s, nil
}

// NewMemoryStore returns a store that never touches disk.
func NewMemoryStore(text string) *Store {
	s := &Store{}
	s.setText(text)
	return s
}

// NewDefaultMemoryStore returns an in-memory store holding DefaultRules.
func NewDefaultMemoryStore() *Store {
	return NewMemoryStore(strings.Join(DefaultRules, "\n") + "\n")
}

func (s *Store) setText(text string) {
	s.text = text
	s.parsed = Parse(text)
}

// Path returns the backing file, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Text returns the raw rule text.
func (s *Store) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Rules returns the parsed rules in file order.
func (s *Store) Rules() []model.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Rule, len(s.parsed))
	copy(out, s.parsed)
	return out
}

// NextNumber returns one more than the highest rule number in the store.
func (s *Store) NextNumber() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, r := range s.parsed {
		highest = max(highest, r.Number)
	}
	return highest + 1
}

// Append adds line verbatim as a new line. The line is not validated; a line
// that does not parse is kept in the file but skipped by the evaluator.
func (s *Store) Append(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return errors.New("cannot append empty rule")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.text
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text += line + "\n"

	if s.path != "" {
		if err := writeAtomic(s.path, text); err != nil {
			return fmt.Errorf("failed to append rule: %w", err)
		}
	}
	s.setText(text)
	return nil
}

// Reload re-reads the backing file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload rule store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setText(string(data))
	return nil
}

func writeAtomic(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
