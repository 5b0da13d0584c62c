package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/prompts"
	"github.com/Veraticus/riskdesk/internal/rules"
)

const (
	scorerComponent = "transaction_scorer"
	batchComponent  = "batch_scorer"

	missingIDExplanation = "No assessment returned for this transaction; default risk applied."
	batchExplanation     = "Automated assessment unavailable; default risk applied."
)

// Scorer combines the rule evaluator with LLM judgments for transactions.
type Scorer struct {
	client    llm.Client
	store     *rules.Store
	evaluator *rules.Evaluator
	prompts   *prompts.Builder
}

// NewScorer creates a scorer. A missing client or rule store is a
// configuration error.
func NewScorer(client llm.Client, store *rules.Store) (*Scorer, error) {
	if client == nil {
		return nil, common.NewConfigError(scorerComponent, errors.New("no LLM client"))
	}
	if store == nil {
		return nil, common.NewConfigError(scorerComponent, errors.New("no rule store"))
	}
	return &Scorer{
		client:    client,
		store:     store,
		evaluator: rules.NewEvaluator(store),
		prompts:   prompts.MustNew(),
	}, nil
}

// Rules returns the rule store the scorer reads.
func (s *Scorer) Rules() *rules.Store {
	return s.store
}

// Evaluate returns the rule-only verdict for tx.
func (s *Scorer) Evaluate(tx *model.Transaction) model.Verdict {
	return s.evaluator.Evaluate(tx)
}

// Assess scores one transaction. The rule verdict is computed first and can
// only raise the LLM verdict. When the provider fails the rule verdict is
// returned as is.
func (s *Scorer) Assess(ctx context.Context, tx model.Transaction) Result[model.Verdict] {
	ruleVerdict := s.evaluator.Evaluate(&tx)

	llmVerdict, err := s.assessWithLLM(ctx, &tx)
	if err != nil {
		recordFallback(scorerComponent, FallbackRuleOnly, err, common.Fields{"transaction_id": tx.ID})
		return Result[model.Verdict]{Value: ruleVerdict, Err: err, Fallback: FallbackRuleOnly}
	}

	return Result[model.Verdict]{Value: model.Merge(llmVerdict, ruleVerdict)}
}

func (s *Scorer) assessWithLLM(ctx context.Context, tx *model.Transaction) (model.Verdict, error) {
	prompt, err := s.prompts.TransactionRisk(s.store.Text(), tx)
	if err != nil {
		return model.Verdict{}, err
	}

	resp, err := s.client.Complete(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err != nil {
		return model.Verdict{}, common.ProviderError("assess transaction", err)
	}

	var pv providerVerdict
	if err := llm.DecodeJSON(resp.Text, &pv); err != nil {
		return model.Verdict{}, err
	}
	return pv.verdict(), nil
}

// AssessBatch scores txs with a single provider call. The output has the
// input's length and order and the inputs are never modified. An empty
// input is returned unchanged without a provider call. Transactions the
// provider did not answer for get the default verdict; if the call fails
// every transaction gets it.
func (s *Scorer) AssessBatch(ctx context.Context, txs []model.Transaction) BatchResult {
	if len(txs) == 0 {
		return BatchResult{Transactions: txs, Verdicts: []model.Verdict{}}
	}

	answers, err := s.batchWithLLM(ctx, txs)
	if err != nil {
		recordFallback(batchComponent, FallbackBatchDefault, err, common.Fields{"batch_size": len(txs)})
		verdicts := make([]model.Verdict, len(txs))
		for i := range verdicts {
			verdicts[i] = model.DefaultVerdict(batchExplanation)
		}
		return BatchResult{
			Transactions: annotate(txs, verdicts),
			Verdicts:     verdicts,
			Fallback:     FallbackBatchDefault,
			Err:          err,
		}
	}

	result := BatchResult{Verdicts: make([]model.Verdict, len(txs))}
	for i := range txs {
		pv, ok := answers[strings.TrimSpace(txs[i].ID)]
		if !ok {
			result.Verdicts[i] = model.DefaultVerdict(missingIDExplanation)
			result.MissingIDs++
			continue
		}
		result.Verdicts[i] = pv.verdict()
	}
	if result.MissingIDs > 0 {
		result.Fallback = FallbackMissingID
		recordFallback(batchComponent, FallbackMissingID, nil, common.Fields{
			"batch_size": len(txs),
			"missing":    result.MissingIDs,
		})
	}
	result.Transactions = annotate(txs, result.Verdicts)
	return result
}

// batchWithLLM returns the provider's answers keyed by stringified id.
func (s *Scorer) batchWithLLM(ctx context.Context, txs []model.Transaction) (map[string]providerVerdict, error) {
	prompt, err := s.prompts.BatchRisk(s.store.Text(), txs)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Complete(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err != nil {
		return nil, common.ProviderError("assess batch", err)
	}

	var answers []providerVerdict
	if err := llm.DecodeJSON(resp.Text, &answers); err != nil {
		// Some providers wrap the array in an object when asked for JSON.
		var wrapped map[string][]providerVerdict
		if wrapErr := llm.DecodeJSON(resp.Text, &wrapped); wrapErr != nil || len(wrapped) != 1 {
			return nil, err
		}
		for _, v := range wrapped {
			answers = v
		}
	}

	byID := make(map[string]providerVerdict, len(answers))
	for _, a := range answers {
		if a.TransactionID == "" {
			continue
		}
		if _, dup := byID[string(a.TransactionID)]; !dup {
			byID[string(a.TransactionID)] = a
		}
	}
	slog.Debug("Batch assessed", "requested", len(txs), "answered", len(byID))
	return byID, nil
}

// ScoreBatch is AssessBatch with every verdict merged over its rule verdict,
// so the rule evaluator stays the floor under the batch result.
func (s *Scorer) ScoreBatch(ctx context.Context, txs []model.Transaction) BatchResult {
	result := s.AssessBatch(ctx, txs)
	if len(txs) == 0 {
		return result
	}
	for i := range txs {
		result.Verdicts[i] = model.Merge(result.Verdicts[i], s.evaluator.Evaluate(&txs[i]))
	}
	result.Transactions = annotate(txs, result.Verdicts)
	return result
}

func annotate(txs []model.Transaction, verdicts []model.Verdict) []model.Transaction {
	out := make([]model.Transaction, len(txs))
	for i := range txs {
		out[i] = txs[i].WithVerdict(verdicts[i])
	}
	return out
}

// String describes the result for logs.
func (r BatchResult) String() string {
	if r.Fallback == FallbackNone {
		return fmt.Sprintf("%d verdicts", len(r.Verdicts))
	}
	return fmt.Sprintf("%d verdicts (%s fallback, %d missing)", len(r.Verdicts), r.Fallback, r.MissingIDs)
}
