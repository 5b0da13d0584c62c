// Package cache keeps the compliance dashboard's scored pages on disk so a
// page is only sent to the risk scorer once until it is regenerated.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/risk"
	"github.com/Veraticus/riskdesk/internal/service"
)

// DefaultPageSize is the number of transactions per dashboard page.
const DefaultPageSize = 10

// State reports how a page was served.
type State string

// Page states.
const (
	StateHit           State = "hit"
	StateMiss          State = "miss"
	StateCorrupt       State = "corrupt"
	StateForcedRefresh State = "forced_refresh"
)

// BatchScorer scores one page of transactions.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, txs []model.Transaction) risk.BatchResult
}

// PageResult is one dashboard page with the scope's stats.
type PageResult struct {
	State             State               `json:"state"`
	Transactions      []model.Transaction `json:"transactions"`
	Stats             model.Stats         `json:"stats"`
	Page              int                 `json:"page"`
	TotalPages        int                 `json:"total_pages"`
	TotalTransactions int                 `json:"total_transactions"`
	// Fallback is set when the page was scored from a degraded batch.
	Fallback risk.FallbackKind `json:"fallback,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	Dir      string
	PageSize int
}

// Orchestrator serves scored pages from the cache directory.
type Orchestrator struct {
	source   service.TransactionSource
	scorer   BatchScorer
	group    singleflight.Group
	dir      string
	pageSize int
}

// New creates an orchestrator, creating the cache directory if needed. A nil
// scorer makes it read-only: cached pages are served and anything that would
// need scoring fails with a ConfigError.
func New(source service.TransactionSource, scorer BatchScorer, opts Options) (*Orchestrator, error) {
	if source == nil {
		return nil, common.NewConfigError("risk_cache", errors.New("no transaction source"))
	}
	if opts.Dir == "" {
		return nil, common.NewConfigError("risk_cache", errors.New("no cache directory"))
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Orchestrator{source: source, scorer: scorer, dir: opts.Dir, pageSize: opts.PageSize}, nil
}

func errReadOnly(key Key) error {
	return common.NewConfigError("risk_cache", fmt.Errorf("no scorer to compute %s", key.PageFile()))
}

// Dir returns the cache directory.
func (o *Orchestrator) Dir() string {
	return o.dir
}

// PageSize returns the number of transactions per page.
func (o *Orchestrator) PageSize() int {
	return o.pageSize
}

// Page returns the scored page for key. The page number is clamped to the
// available pages. Unreadable cache files are deleted and recomputed; only
// failures to read the transaction source are returned as errors.
func (o *Orchestrator) Page(ctx context.Context, key Key, regenerate bool) (*PageResult, error) {
	filter := service.TransactionFilter{CustomerID: key.CustomerID}
	total, err := o.source.CountTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	totalPages := max(1, int(math.Ceil(float64(total)/float64(o.pageSize))))
	key.Page = min(max(key.Page, 1), totalPages)

	if regenerate {
		if o.scorer == nil {
			return nil, errReadOnly(key)
		}
		removeFile(o.path(key.PageFile()))
		removeFile(o.path(key.StatsFile()))
	}

	v, err, _ := o.group.Do(key.PageFile(), func() (any, error) {
		return o.load(ctx, key, filter, regenerate)
	})
	if err != nil {
		return nil, err
	}
	loaded := v.(*PageResult) //nolint:forcetypeassert // load only returns *PageResult

	result := *loaded
	result.Transactions = make([]model.Transaction, len(loaded.Transactions))
	copy(result.Transactions, loaded.Transactions)
	result.Page = key.Page
	result.TotalPages = totalPages
	result.TotalTransactions = total

	result.Stats, err = o.stats(ctx, key, filter, result.Transactions)
	if err != nil {
		return nil, err
	}

	metrics.CacheEvents.WithLabelValues(string(result.State)).Inc()
	slog.Debug("Served risk page",
		"customer_id", key.CustomerID,
		"page", key.Page,
		"state", result.State,
		"transactions", len(result.Transactions))
	return &result, nil
}

func (o *Orchestrator) load(ctx context.Context, key Key, filter service.TransactionFilter, regenerate bool) (*PageResult, error) {
	path := o.path(key.PageFile())
	state := StateMiss
	if regenerate {
		state = StateForcedRefresh
	}

	txs, err := readPage(path)
	switch {
	case err == nil:
		return &PageResult{State: StateHit, Transactions: withStatus(txs)}, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		slog.Warn("Discarding unreadable cache page", "file", key.PageFile(), "error", err)
		removeFile(path)
		state = StateCorrupt
	}

	if o.scorer == nil {
		return nil, errReadOnly(key)
	}

	filter.Limit = o.pageSize
	filter.Offset = (key.Page - 1) * o.pageSize
	page, err := o.source.Transactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", key.Page, err)
	}

	scored := o.scorer.ScoreBatch(ctx, page)
	annotated := withStatus(scored.Transactions)
	if annotated == nil {
		annotated = []model.Transaction{}
	}

	if err := writeJSON(path, annotated); err != nil {
		common.LogError(err, "Failed to cache risk page", common.Fields{"file": key.PageFile()})
		return &PageResult{State: state, Transactions: annotated, Fallback: scored.Fallback}, nil
	}

	// Re-read so a miss returns exactly what later hits will.
	cached, err := readPage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to verify cached page: %w", err)
	}
	return &PageResult{State: state, Transactions: withStatus(cached), Fallback: scored.Fallback}, nil
}

// stats returns the scope's cached stats, recomputing them when the file is
// missing or unreadable. Recomputed stats average every page cached for the
// scope so far, so they depend on which pages have been visited.
func (o *Orchestrator) stats(ctx context.Context, key Key, filter service.TransactionFilter, current []model.Transaction) (model.Stats, error) {
	path := o.path(key.StatsFile())
	stats, err := readStats(path)
	switch {
	case err == nil:
		return stats, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		slog.Warn("Discarding unreadable stats cache", "file", key.StatsFile(), "error", err)
		removeFile(path)
	}

	scanned := o.scanScope(key)
	if len(scanned) == 0 {
		scanned = current
	}
	stats = ScoreStats(scanned)

	smurfing, previous, err := o.source.CountFlagged(ctx, filter)
	if err != nil {
		return model.Stats{}, fmt.Errorf("failed to count flagged transactions: %w", err)
	}
	stats.PatternAnomalies = smurfing
	stats.InsiderThreats = previous

	if err := writeJSON(path, stats); err != nil {
		common.LogError(err, "Failed to cache stats", common.Fields{"file": key.StatsFile()})
	}
	return stats, nil
}

// scanScope collects the transactions of every readable page in the key's scope.
func (o *Orchestrator) scanScope(key Key) []model.Transaction {
	paths, err := key.scopePages(o.dir)
	if err != nil {
		slog.Warn("Failed to list cache pages", "error", err)
		return nil
	}
	var out []model.Transaction
	for _, p := range paths {
		txs, err := readPage(p)
		if err != nil {
			continue
		}
		out = append(out, txs...)
	}
	return out
}

// Invalidate removes the key's page and the scope's stats.
func (o *Orchestrator) Invalidate(key Key) {
	removeFile(o.path(key.PageFile()))
	removeFile(o.path(key.StatsFile()))
}

// Purge removes every cache file and returns how many were deleted.
func (o *Orchestrator) Purge() (int, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != jsonExt {
			continue
		}
		if err := os.Remove(o.path(entry.Name())); err != nil {
			return n, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		n++
	}
	slog.Info("Purged risk cache", "dir", o.dir, "files", n)
	return n, nil
}

func (o *Orchestrator) path(name string) string {
	return filepath.Join(o.dir, name)
}

// ScoreStats computes high_risk_count and avg_risk_score over txs. A
// transaction without a score counts as 0.
func ScoreStats(txs []model.Transaction) model.Stats {
	var stats model.Stats
	if len(txs) == 0 {
		return stats
	}
	total := 0
	for i := range txs {
		score := scoreOf(&txs[i])
		total += score
		if score >= model.HighRiskThreshold {
			stats.HighRiskCount++
		}
	}
	stats.AvgRiskScore = math.Round(float64(total)/float64(len(txs))*100) / 100
	return stats
}

func withStatus(txs []model.Transaction) []model.Transaction {
	for i := range txs {
		txs[i].RiskStatus = model.RiskStatus(scoreOf(&txs[i]))
	}
	return txs
}

func scoreOf(tx *model.Transaction) int {
	if tx.RiskScore == nil {
		return 0
	}
	return *tx.RiskScore
}
