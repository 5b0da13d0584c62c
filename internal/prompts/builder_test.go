package prompts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/model"
)

func TestBuilder_RendersEveryTemplate(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	score := 88
	tx := model.Transaction{
		ID:           "T-1",
		CustomerID:   "C-1",
		Amount:       decimal.NewFromInt(60000),
		RiskScore:    &score,
		RiskCategory: "High",
	}
	verdict := model.Verdict{RiskScore: 75, RiskCategory: model.CategoryHigh, RuleUpdateNeeded: true}

	tests := []struct {
		name   string
		render func() (string, error)
		want   []string
		reject []string
	}{
		{
			name:   "batch risk",
			render: func() (string, error) { return b.BatchRisk("Rule 1: ...", []model.Transaction{tx}) },
			want:   []string{`"transaction_id": "T-1"`, "Rule 1: ...", "each of the 1 transactions"},
			reject: []string{`"risk_score": 88`},
		},
		{
			name:   "transaction risk",
			render: func() (string, error) { return b.TransactionRisk("Rule 1: ...", &tx) },
			want:   []string{`"transaction_amount": 60000`, "rule_update_needed"},
		},
		{
			name: "profile risk",
			render: func() (string, error) {
				return b.ProfileRisk(&model.KYCProfile{CustomerID: "C-1", PEP: true})
			},
			want: []string{`"pep": true`},
		},
		{
			name: "combined risk",
			render: func() (string, error) {
				return b.CombinedRisk(verdict, model.TransactionSummary{Total: 5, HighRisk: 2, AvgRiskScore: 61})
			},
			want:   []string{`"high_risk": 2`, "recommendation"},
			reject: []string{"T-1"},
		},
		{
			name:   "rule update",
			render: func() (string, error) { return b.RuleUpdate("Rule 1: ...", 8, &tx, verdict) },
			want:   []string{"Rule 8: If [condition]", "No rule update needed."},
		},
		{
			name:   "classify",
			render: func() (string, error) { return b.ClassifyQuery("how do I spot phishing?") },
			want:   []string{"how do I spot phishing?", "NO_TRANSACTIONS"},
		},
		{
			name: "analysis plan",
			render: func() (string, error) {
				return b.AnalysisPlan(PlanData{
					Query:    "spend by method",
					Columns:  []string{"method_of_transaction", "transaction_amount"},
					RowCount: 12,
				})
			},
			want: []string{"method_of_transaction, transaction_amount", "Row count: 12", `"op": "group_by"`},
		},
		{
			name: "explain",
			render: func() (string, error) {
				return b.Explain(ExplainData{CustomerID: "C-1", Query: "q", Summary: "ATM leads"})
			},
			want:   []string{"CUSTOMER ID: C-1", "ATM leads"},
			reject: []string{"RESULT ROWS"},
		},
		{
			name:   "direct answer",
			render: func() (string, error) { return b.DirectAnswer("what is smurfing?") },
			want:   []string{"USER QUERY: what is smurfing?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.render()
			require.NoError(t, err)
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.reject {
				assert.NotContains(t, out, s)
			}
		})
	}
}
