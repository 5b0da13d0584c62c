package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/service"
)

// DefaultRecentTransactions is how many of a customer's latest transactions
// feed the assessment.
const DefaultRecentTransactions = 5

// CustomerAssessor produces a customer-level assessment from the customer's
// profile and recent transactions.
type CustomerAssessor struct {
	transactions service.TransactionSource
	scorer       *Scorer
	profiles     *ProfileScorer
	aggregator   *Aggregator
	mutator      *Mutator
	recorder     service.AssessmentRecorder
	recent       int
}

// AssessorOption configures a CustomerAssessor.
type AssessorOption func(*CustomerAssessor)

// WithMutator proposes rule updates for the latest transaction's verdict.
func WithMutator(m *Mutator) AssessorOption {
	return func(a *CustomerAssessor) { a.mutator = m }
}

// WithRecorder persists every assessment.
func WithRecorder(r service.AssessmentRecorder) AssessorOption {
	return func(a *CustomerAssessor) { a.recorder = r }
}

// WithRecent sets how many recent transactions are scored.
func WithRecent(n int) AssessorOption {
	return func(a *CustomerAssessor) {
		if n > 0 {
			a.recent = n
		}
	}
}

// NewCustomerAssessor wires the scorers together.
func NewCustomerAssessor(
	transactions service.TransactionSource,
	scorer *Scorer,
	profiles *ProfileScorer,
	aggregator *Aggregator,
	opts ...AssessorOption,
) (*CustomerAssessor, error) {
	if transactions == nil || scorer == nil || profiles == nil || aggregator == nil {
		return nil, common.NewConfigError("customer_assessor", errors.New("missing collaborator"))
	}
	a := &CustomerAssessor{
		transactions: transactions,
		scorer:       scorer,
		profiles:     profiles,
		aggregator:   aggregator,
		recent:       DefaultRecentTransactions,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Assess scores customerID. It fails only when the customer has no
// transactions (common.ErrDataNotFound) or they cannot be loaded; provider
// failures degrade the result and are listed in Assessment.Degraded.
func (a *CustomerAssessor) Assess(ctx context.Context, customerID string) (*model.Assessment, error) {
	txs, err := a.transactions.TransactionsForCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("no transactions for customer %s: %w", customerID, common.ErrDataNotFound)
	}

	recent := txs[max(0, len(txs)-a.recent):]
	latest := recent[len(recent)-1]

	var (
		batch         BatchResult
		profileResult Result[model.Verdict]
		latestResult  Result[model.Verdict]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		batch = a.scorer.ScoreBatch(gctx, recent)
		return nil
	})
	g.Go(func() error {
		profileResult = a.profiles.Assess(gctx, customerID)
		return nil
	})
	g.Go(func() error {
		latestResult = a.scorer.Assess(gctx, latest)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The single-transaction verdict is the richer one for the latest row.
	verdicts := make([]model.Verdict, len(batch.Verdicts))
	copy(verdicts, batch.Verdicts)
	if !latestResult.Degraded() {
		verdicts[len(verdicts)-1] = latestResult.Value
	}
	summary := model.Summarize(verdicts)

	combined := a.aggregator.Combine(ctx, profileResult.Value, summary)

	assessment := &model.Assessment{
		CustomerID:        customerID,
		Combined:          combined.Value,
		Profile:           profileResult.Value,
		Latest:            latestResult.Value,
		Summary:           summary,
		TotalTransactions: len(txs),
		RiskyTransactions: countFraudLabelled(txs),
	}
	assessment.Degraded = degraded(
		degradedEntry{"transactions", batch.Fallback},
		degradedEntry{"latest_transaction", latestResult.Fallback},
		degradedEntry{"profile", profileResult.Fallback},
		degradedEntry{"combined", combined.Fallback},
	)

	if a.mutator != nil && latestResult.Value.RuleUpdateNeeded {
		updated, err := a.mutator.ProposeUpdate(ctx, latest, latestResult.Value)
		if err != nil {
			slog.Warn("Rule update failed", "customer_id", customerID, "error", err)
		}
		assessment.RuleUpdated = updated
	}

	if a.recorder != nil {
		assessment.CreatedAt = time.Now().UTC()
		if err := a.recorder.SaveAssessment(ctx, assessment); err != nil {
			common.LogError(err, "Failed to record assessment", common.Fields{"customer_id": customerID})
		}
	}

	slog.Info("Customer assessed",
		"customer_id", customerID,
		"risk_score", assessment.Combined.RiskScore,
		"risk_category", assessment.Combined.RiskCategory,
		"degraded", len(assessment.Degraded))
	return assessment, nil
}

type degradedEntry struct {
	component string
	kind      FallbackKind
}

func degraded(entries ...degradedEntry) []string {
	var out []string
	for _, e := range entries {
		if e.kind != FallbackNone {
			out = append(out, e.component+":"+string(e.kind))
		}
	}
	return out
}

func countFraudLabelled(txs []model.Transaction) int {
	n := 0
	for i := range txs {
		if txs[i].IsFraudLabelled() {
			n++
		}
	}
	return n
}
