package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/rules"
	"github.com/Veraticus/riskdesk/internal/testutil"
)

var errProviderDown = errors.New("provider down")

func newTestScorer(t *testing.T, client llm.Client) *Scorer {
	t.Helper()
	s, err := NewScorer(client, rules.NewDefaultMemoryStore())
	require.NoError(t, err)
	return s
}

func TestNewScorer_RequiresCollaborators(t *testing.T) {
	_, err := NewScorer(nil, rules.NewDefaultMemoryStore())
	assert.True(t, common.IsConfigError(err))

	_, err = NewScorer(llm.NewMockClient(), nil)
	assert.True(t, common.IsConfigError(err))
}

func TestScorer_AssessMerge(t *testing.T) {
	large := testutil.Txn("T1").Clean().Amount(60000).Build()
	clean := testutil.Txn("T2").Clean().Build()

	tests := []struct {
		name         string
		tx           model.Transaction
		reply        string
		wantScore    int
		wantCategory model.Category
		wantFactors  []string
	}{
		{
			name:         "rule verdict raises a lower LLM score",
			tx:           large,
			reply:        `{"risk_score": 40, "risk_category": "Medium", "risk_factors": ["Amount above average"], "explanation": "ok"}`,
			wantScore:    70,
			wantCategory: model.CategoryHigh,
			wantFactors:  []string{"Amount above average", "Unusually large transaction amount"},
		},
		{
			name:         "LLM verdict kept when higher",
			tx:           large,
			reply:        "```json\n{\"risk_score\": 92, \"risk_category\": \"very_high\", \"risk_factors\": [\"Structuring\"]}\n```",
			wantScore:    92,
			wantCategory: model.CategoryVeryHigh,
			wantFactors:  []string{"Structuring", "Unusually large transaction amount"},
		},
		{
			name:         "equal scores keep LLM category",
			tx:           large,
			reply:        `{"risk_score": 70, "risk_category": "Medium", "risk_factors": []}`,
			wantScore:    70,
			wantCategory: model.CategoryMedium,
			wantFactors:  []string{"Unusually large transaction amount"},
		},
		{
			name:         "unknown category derived from score",
			tx:           clean,
			reply:        `{"risk_score": "15", "risk_category": "negligible"}`,
			wantScore:    15,
			wantCategory: model.CategoryLow,
			wantFactors:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockClient(tt.reply)
			s := newTestScorer(t, mock)

			res := s.Assess(context.Background(), tt.tx)
			require.NoError(t, res.Err)
			assert.False(t, res.Degraded())
			assert.Equal(t, tt.wantScore, res.Value.RiskScore)
			assert.Equal(t, tt.wantCategory, res.Value.RiskCategory)
			assert.Equal(t, tt.wantFactors, res.Value.RiskFactors)
			assert.Equal(t, 1, mock.CallCount())
		})
	}
}

func TestScorer_AssessFallsBackToRules(t *testing.T) {
	tests := []struct {
		name    string
		mock    *llm.MockClient
		wantErr error
	}{
		{name: "provider error", mock: (&llm.MockClient{}).Fail(errProviderDown), wantErr: common.ErrProvider},
		{name: "malformed reply", mock: llm.NewMockClient("I think it is risky"), wantErr: common.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScorer(t, tt.mock)
			tx := testutil.Txn("T1").Clean().Amount(60000).Build()

			res := s.Assess(context.Background(), tx)
			assert.Equal(t, FallbackRuleOnly, res.Fallback)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.Equal(t, s.Evaluate(&tx), res.Value)
			assert.Equal(t, 70, res.Value.RiskScore)
		})
	}
}

func TestScorer_AssessBatchEmpty(t *testing.T) {
	mock := llm.NewMockClient()
	s := newTestScorer(t, mock)

	for _, input := range [][]model.Transaction{nil, {}} {
		res := s.AssessBatch(context.Background(), input)
		assert.Len(t, res.Transactions, len(input))
		assert.Empty(t, res.Verdicts)
		assert.False(t, res.Degraded())
	}
	assert.Zero(t, mock.CallCount())
}

func TestScorer_AssessBatchMatchesByStringifiedID(t *testing.T) {
	txs := testutil.NewTransactions("C1").Add(
		testutil.Txn("1001").Clean(),
		testutil.Txn("1002").Clean(),
		testutil.Txn("1003").Clean(),
	).Build()

	mock := llm.NewMockClient("```json\n[" +
		`{"transaction_id": 1003, "risk_score": 95, "risk_category": "Very High", "risk_explanation": "flagged"},` +
		`{"transaction_id": "1001", "risk_score": 10, "risk_category": "Low", "risk_explanation": "fine"}` +
		"]\n```")
	s := newTestScorer(t, mock)

	res := s.AssessBatch(context.Background(), txs)
	require.Len(t, res.Verdicts, 3)
	require.Len(t, res.Transactions, 3)

	assert.Equal(t, 10, res.Verdicts[0].RiskScore)
	assert.Equal(t, "fine", res.Verdicts[0].Explanation)
	assert.Equal(t, model.DefaultScore, res.Verdicts[1].RiskScore)
	assert.Equal(t, model.DefaultCategory, res.Verdicts[1].RiskCategory)
	assert.Equal(t, 95, res.Verdicts[2].RiskScore)

	assert.Equal(t, FallbackMissingID, res.Fallback)
	assert.Equal(t, 1, res.MissingIDs)
	assert.NoError(t, res.Err)

	for i := range txs {
		assert.Equal(t, txs[i].ID, res.Transactions[i].ID, "order preserved")
		require.NotNil(t, res.Transactions[i].RiskScore)
		assert.Equal(t, res.Verdicts[i].RiskScore, *res.Transactions[i].RiskScore)
		assert.Nil(t, txs[i].RiskScore, "input must not be mutated")
	}
}

func TestScorer_AssessBatchTotalFailure(t *testing.T) {
	tests := []struct {
		name    string
		mock    *llm.MockClient
		wantErr error
	}{
		{name: "provider error", mock: (&llm.MockClient{}).Fail(errProviderDown), wantErr: common.ErrProvider},
		{name: "truncated json", mock: llm.NewMockClient(`[{"transaction_id": "1", "risk_sc`), wantErr: common.ErrParse},
		{name: "prose", mock: llm.NewMockClient("All transactions look fine."), wantErr: common.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := testutil.NewTransactions("C1").Clean("T", 4).Build()
			s := newTestScorer(t, tt.mock)

			res := s.AssessBatch(context.Background(), txs)
			require.Len(t, res.Verdicts, len(txs))
			assert.Equal(t, FallbackBatchDefault, res.Fallback)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			for _, v := range res.Verdicts {
				assert.Equal(t, 50, v.RiskScore)
				assert.Equal(t, model.CategoryMedium, v.RiskCategory)
			}
		})
	}
}

func TestScorer_AssessBatchAcceptsWrappedArray(t *testing.T) {
	txs := testutil.NewTransactions("C1").Clean("T", 1).Build()
	mock := llm.NewMockClient(`{"assessments": [{"transaction_id": "T-1", "risk_score": 12, "risk_category": "Low"}]}`)
	s := newTestScorer(t, mock)

	res := s.AssessBatch(context.Background(), txs)
	assert.False(t, res.Degraded())
	assert.Equal(t, 12, res.Verdicts[0].RiskScore)
}

func TestScorer_ScoreBatchKeepsRuleFloor(t *testing.T) {
	txs := testutil.NewTransactions("C1").Add(
		testutil.Txn("A").Clean().Flags(0, 1, 0),
		testutil.Txn("B").Clean(),
	).Build()
	mock := llm.NewMockClient(`[{"transaction_id": "A", "risk_score": 20, "risk_category": "Low"},
		{"transaction_id": "B", "risk_score": 20, "risk_category": "Low"}]`)
	s := newTestScorer(t, mock)

	res := s.ScoreBatch(context.Background(), txs)
	assert.Equal(t, 80, res.Verdicts[0].RiskScore)
	assert.Equal(t, model.CategoryHigh, res.Verdicts[0].RiskCategory)
	assert.Contains(t, res.Verdicts[0].RiskFactors, "Potential structuring/smurfing behavior detected")
	assert.Equal(t, 20, res.Verdicts[1].RiskScore)
	assert.Equal(t, "High", res.Transactions[0].RiskCategory)
}
