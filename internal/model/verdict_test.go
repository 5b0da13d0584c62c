package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "low", want: CategoryLow},
		{in: " Medium ", want: CategoryMedium},
		{in: "moderate", want: CategoryMedium},
		{in: "HIGH", want: CategoryHigh},
		{in: "very high", want: CategoryVeryHigh},
		{in: "VERY_HIGH", want: CategoryVeryHigh},
		{in: "very-high", want: CategoryVeryHigh},
		{in: `"Very   High"`, want: CategoryVeryHigh},
		{in: "critical", want: CategoryVeryHigh},
		{in: "extreme", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategory_UnmarshalJSON(t *testing.T) {
	var v struct {
		Category Category `json:"risk_category"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"risk_category":"very_high"}`), &v))
	assert.Equal(t, CategoryVeryHigh, v.Category)

	require.NoError(t, json.Unmarshal([]byte(`{"risk_category":""}`), &v))
	assert.Equal(t, Category(""), v.Category)

	require.Error(t, json.Unmarshal([]byte(`{"risk_category":"purple"}`), &v))
}

func TestMaxCategory(t *testing.T) {
	assert.Equal(t, CategoryHigh, MaxCategory(CategoryLow, CategoryHigh))
	assert.Equal(t, CategoryVeryHigh, MaxCategory(CategoryVeryHigh, CategoryMedium))
	assert.Equal(t, CategoryLow, MaxCategory(CategoryLow, "unknown"))
	assert.False(t, Category("unknown").Valid())
}

func TestCategoryForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Category
	}{
		{0, CategoryLow},
		{30, CategoryLow},
		{31, CategoryMedium},
		{70, CategoryMedium},
		{71, CategoryHigh},
		{90, CategoryHigh},
		{91, CategoryVeryHigh},
		{100, CategoryVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryForScore(tt.score), "score %d", tt.score)
	}
}

func TestScoreHelpers(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-5))
	assert.Equal(t, 100, ClampScore(150))
	assert.Equal(t, 42, ClampScore(42))
	assert.Equal(t, 43, RoundScore(42.5))
	assert.Equal(t, 100, RoundScore(180.2))

	assert.Equal(t, StatusValidated, RiskStatus(29))
	assert.Equal(t, StatusUnderReview, RiskStatus(30))
	assert.Equal(t, StatusUnderReview, RiskStatus(69))
	assert.Equal(t, StatusFrozen, RiskStatus(70))
}

func TestMerge(t *testing.T) {
	llmVerdict := Verdict{RiskScore: 40, RiskCategory: CategoryMedium, RiskFactors: []string{"odd hour"}, Explanation: "llm"}

	t.Run("rule raises", func(t *testing.T) {
		rule := Verdict{RiskScore: 70, RiskCategory: CategoryHigh, RiskFactors: []string{"large amount"}}
		got := Merge(llmVerdict, rule)
		assert.Equal(t, 70, got.RiskScore)
		assert.Equal(t, CategoryHigh, got.RiskCategory)
		assert.Equal(t, []string{"odd hour", "large amount"}, got.RiskFactors)
		assert.Equal(t, "llm", got.Explanation)
	})

	t.Run("rule never lowers", func(t *testing.T) {
		rule := Verdict{RiskScore: 40, RiskCategory: CategoryVeryHigh, RiskFactors: []string{"tie"}}
		got := Merge(llmVerdict, rule)
		assert.Equal(t, 40, got.RiskScore)
		assert.Equal(t, CategoryMedium, got.RiskCategory, "ties keep the provider category")
		assert.Equal(t, []string{"odd hour", "tie"}, got.RiskFactors)
	})

	t.Run("inputs untouched", func(t *testing.T) {
		factors := make([]string, 1, 4)
		factors[0] = "a"
		base := Verdict{RiskScore: 10, RiskFactors: factors}
		_ = Merge(base, Verdict{RiskScore: 20, RiskFactors: []string{"b"}})
		assert.Equal(t, []string{"a"}, base.RiskFactors)
		assert.Empty(t, factors[:2][1], "spare capacity is not written")
	})
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Total)
	assert.InDelta(t, float64(DefaultScore), empty.AvgRiskScore, 0.001)

	s := Summarize([]Verdict{
		{RiskScore: 95, RiskCategory: CategoryVeryHigh},
		{RiskScore: 75, RiskCategory: CategoryHigh},
		{RiskScore: 50, RiskCategory: CategoryMedium},
		{RiskScore: 10, RiskCategory: CategoryLow},
	})
	assert.Equal(t, TransactionSummary{Total: 4, HighRisk: 2, MediumRisk: 1, LowRisk: 1, AvgRiskScore: 57.5}, s)
}

func TestDefaultAndZeroVerdicts(t *testing.T) {
	d := DefaultVerdict("provider unavailable")
	assert.Equal(t, DefaultScore, d.RiskScore)
	assert.Equal(t, DefaultCategory, d.RiskCategory)
	assert.NotNil(t, d.RiskFactors)

	z := ZeroVerdict()
	assert.Equal(t, 0, z.RiskScore)
	assert.Equal(t, CategoryLow, z.RiskCategory)
	assert.NotNil(t, z.RiskFactors)
}
