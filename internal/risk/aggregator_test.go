package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
)

func TestAggregator_Combine(t *testing.T) {
	profile := model.Verdict{RiskScore: 40, RiskCategory: model.CategoryMedium}
	summary := model.TransactionSummary{Total: 4, HighRisk: 1, MediumRisk: 1, LowRisk: 2, AvgRiskScore: 61}

	t.Run("provider verdict", func(t *testing.T) {
		mock := llm.NewMockClient(`{"risk_score": 66, "risk_category": "Medium", "risk_factors": ["Mixed history"],
			"explanation": "moderate", "recommendation": "Enhanced monitoring"}`)
		a, err := NewAggregator(mock)
		require.NoError(t, err)

		res := a.Combine(context.Background(), profile, summary)
		require.NoError(t, res.Err)
		assert.Equal(t, 66, res.Value.RiskScore)
		assert.Equal(t, "Enhanced monitoring", res.Value.Recommendation)

		prompt := mock.Calls()[0].Prompt
		assert.Contains(t, prompt, "combined customer risk assessment")
	})

	tests := []struct {
		name    string
		mock    *llm.MockClient
		wantErr error
	}{
		{name: "provider error", mock: (&llm.MockClient{}).Fail(errProviderDown), wantErr: common.ErrProvider},
		{name: "unparseable reply", mock: llm.NewMockClient("combined: medium"), wantErr: common.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAggregator(tt.mock)
			require.NoError(t, err)

			res := a.Combine(context.Background(), profile, summary)
			assert.Equal(t, FallbackMean, res.Fallback)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.Equal(t, 51, res.Value.RiskScore)
			assert.Equal(t, model.CategoryMedium, res.Value.RiskCategory)
			assert.Equal(t, []string{"Error in combined risk assessment"}, res.Value.RiskFactors)
			assert.Equal(t, "Manual review recommended due to assessment error", res.Value.Recommendation)
		})
	}
}

func TestMeanVerdict(t *testing.T) {
	tests := []struct {
		profile int
		avg     float64
		want    int
	}{
		{profile: 0, avg: 0, want: 0},
		{profile: 100, avg: 100, want: 100},
		{profile: 30, avg: 50, want: 40},
		{profile: 45, avg: 50.2, want: 48},
	}
	for _, tt := range tests {
		got := MeanVerdict(model.Verdict{RiskScore: tt.profile}, model.TransactionSummary{AvgRiskScore: tt.avg})
		assert.Equal(t, tt.want, got.RiskScore)
	}
}
