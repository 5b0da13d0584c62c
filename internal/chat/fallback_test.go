package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraudTip(t *testing.T) {
	first := FraudTip("How do I stay safe online?")
	assert.Contains(t, fraudTips, first)
	assert.Equal(t, first, FraudTip("  how do I stay SAFE online?  "), "same question, same tip")
}

func TestOfflineSummary(t *testing.T) {
	txs := chatFixture()

	tests := []struct {
		query string
		want  string
	}{
		{
			query: "Any fraud on my account?",
			want:  "I found 1 transactions flagged as potential fraud, representing 20.0% of your total transactions.",
		},
		{query: "What is the total amount?", want: "The total amount across all your transactions is 3600.00."},
		{query: "My average spend", want: "The average transaction amount is 720.00."},
		{
			query: "Which payment methods do I use?",
			want:  "Your transaction methods breakdown: ATM: 2, Card: 1, UPI: 2. The most common method is ATM.",
		},
		{query: "Can you help me?", want: capabilitiesMessage},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, OfflineSummary(tt.query, txs))
		})
	}

	t.Run("generic", func(t *testing.T) {
		got := OfflineSummary("Tell me something", txs)
		assert.NotEmpty(t, got)
		assert.Equal(t, got, OfflineSummary("Tell me something", txs))
	})

	t.Run("no transactions", func(t *testing.T) {
		assert.Contains(t, fraudTips, OfflineSummary("total amount", nil))
	})
}

func TestChooseCannedChart(t *testing.T) {
	tests := []struct {
		query string
		want  CannedChart
	}{
		{query: "show suspicious activity", want: CannedFraud},
		{query: "risk by payment method", want: CannedFraud},
		{query: "Which channel do I use most?", want: CannedMethod},
		{query: "monthly spend", want: CannedTrend},
		{query: "When did I spend the most?", want: CannedTrend},
		{query: "Which city do I shop in?", want: CannedLocation},
		{query: "biggest purchases", want: CannedAmount},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseCannedChart(tt.query))
		})
	}
}

func TestCannedPlansExecute(t *testing.T) {
	table := NewTable(chatFixture())

	for _, c := range []CannedChart{CannedFraud, CannedMethod, CannedAmount, CannedTrend, CannedLocation} {
		t.Run(string(c), func(t *testing.T) {
			plan := c.Plan()
			require.NoError(t, plan.Validate())
			require.NotNil(t, plan.Chart)

			result, err := plan.Execute(table)
			require.NoError(t, err)
			assert.NotEmpty(t, result.Rows)
			assert.NotEmpty(t, plan.Summary)
		})
	}

	t.Run("method counts", func(t *testing.T) {
		result, err := CannedMethod.Plan().Execute(table)
		require.NoError(t, err)
		assert.Equal(t, []string{"ATM", "UPI", "Card"}, column(t, result, "method_of_transaction"))
		assert.Equal(t, []string{"2", "2", "1"}, column(t, result, "count"))
	})
}
