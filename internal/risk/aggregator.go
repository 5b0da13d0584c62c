package risk

import (
	"context"
	"errors"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/prompts"
)

const (
	aggregatorComponent = "aggregator"

	fallbackFactor         = "Error in combined risk assessment"
	fallbackRecommendation = "Manual review recommended due to assessment error"
	fallbackExplanation    = "Combined assessment unavailable; score is the mean of the profile and transaction scores."
)

// Aggregator merges a profile verdict with a transaction summary into one
// customer-level verdict.
type Aggregator struct {
	client  llm.Client
	prompts *prompts.Builder
}

// NewAggregator creates an aggregator.
func NewAggregator(client llm.Client) (*Aggregator, error) {
	if client == nil {
		return nil, common.NewConfigError(aggregatorComponent, errors.New("no LLM client"))
	}
	return &Aggregator{client: client, prompts: prompts.MustNew()}, nil
}

// Combine asks the provider for a combined verdict. It only sees the
// summary, never individual transactions. On failure the score is the
// rounded mean of the two inputs with category Medium.
func (a *Aggregator) Combine(ctx context.Context, profile model.Verdict, summary model.TransactionSummary) Result[model.CombinedVerdict] {
	combined, err := a.combineWithLLM(ctx, profile, summary)
	if err != nil {
		recordFallback(aggregatorComponent, FallbackMean, err, common.Fields{
			"profile_score": profile.RiskScore,
			"avg_score":     summary.AvgRiskScore,
		})
		return Result[model.CombinedVerdict]{Value: MeanVerdict(profile, summary), Err: err, Fallback: FallbackMean}
	}
	return Result[model.CombinedVerdict]{Value: combined}
}

func (a *Aggregator) combineWithLLM(ctx context.Context, profile model.Verdict, summary model.TransactionSummary) (model.CombinedVerdict, error) {
	prompt, err := a.prompts.CombinedRisk(profile, summary)
	if err != nil {
		return model.CombinedVerdict{}, err
	}
	resp, err := a.client.Complete(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err != nil {
		return model.CombinedVerdict{}, common.ProviderError("combine risk", err)
	}
	var pv providerVerdict
	if err := llm.DecodeJSON(resp.Text, &pv); err != nil {
		return model.CombinedVerdict{}, err
	}
	v := pv.verdict()
	return model.CombinedVerdict{
		RiskScore:      v.RiskScore,
		RiskCategory:   v.RiskCategory,
		RiskFactors:    v.RiskFactors,
		Explanation:    v.Explanation,
		Recommendation: pv.Recommendation,
	}, nil
}

// MeanVerdict is the fallback combined verdict.
func MeanVerdict(profile model.Verdict, summary model.TransactionSummary) model.CombinedVerdict {
	return model.CombinedVerdict{
		RiskScore:      model.RoundScore((float64(profile.RiskScore) + summary.AvgRiskScore) / 2),
		RiskCategory:   model.CategoryMedium,
		RiskFactors:    []string{fallbackFactor},
		Explanation:    fallbackExplanation,
		Recommendation: fallbackRecommendation,
	}
}
