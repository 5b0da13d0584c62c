package rules

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/model"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantErr  bool
		number   int
		score    int
		category model.Category
		factor   string
		clauses  int
	}{
		{
			name:     "canonical",
			line:     `Rule 1: If transaction_amount > 50000, add risk score 70, category "High", factor "Unusually large transaction amount"`,
			number:   1,
			score:    70,
			category: model.CategoryHigh,
			factor:   "Unusually large transaction amount",
			clauses:  1,
		},
		{
			name:     "unquoted category and compound condition",
			line:     `Rule 6: If transaction_amount > 75000 and account_age_days < 60, add risk score 85, category Very High, factor "Large transaction from relatively new account"`,
			number:   6,
			score:    85,
			category: model.CategoryVeryHigh,
			factor:   "Large transaction from relatively new account",
			clauses:  2,
		},
		{
			name:     "quoted string literal",
			line:     `Rule 5: If kyc_status == 'NONE', add risk score 50, category "Medium", factor "Incomplete KYC verification".`,
			number:   5,
			score:    50,
			category: model.CategoryMedium,
			factor:   "Incomplete KYC verification",
			clauses:  1,
		},
		{
			name:    "missing factor",
			line:    `Rule 9: If transaction_amount > 1, add risk score 10, category "Low"`,
			wantErr: true,
		},
		{
			name:    "unknown category",
			line:    `Rule 9: If transaction_amount > 1, add risk score 10, category "Purple", factor "x"`,
			wantErr: true,
		},
		{
			name:    "free text",
			line:    "No rule update needed.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := ParseLine(tt.line)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.number, rule.Number)
			assert.Equal(t, tt.score, rule.Score)
			assert.Equal(t, tt.category, rule.Category)
			assert.Equal(t, tt.factor, rule.Factor)
			assert.Len(t, rule.Clauses, tt.clauses)
		})
	}
}

func TestParseCondition_Literals(t *testing.T) {
	clauses, err := ParseCondition(`kyc_status == 'NONE' AND new_balance < -5.5 and method_of_transaction != ATM`)
	require.NoError(t, err)
	require.Len(t, clauses, 3)

	assert.Equal(t, model.StringValue("NONE"), clauses[0].Literal)
	assert.Equal(t, model.NumberValue(-5.5), clauses[1].Literal)
	assert.Equal(t, model.OpNotEqual, clauses[2].Operator)
	assert.Equal(t, model.StringValue("ATM"), clauses[2].Literal)
}

func TestFormatLine_RoundTrips(t *testing.T) {
	for _, line := range DefaultRules {
		rule, err := ParseLine(line)
		require.NoError(t, err, line)
		assert.Equal(t, line, FormatLine(rule.Number, rule.Condition, rule.Score, rule.Category, rule.Factor))
	}
}

func TestDefaultRules_Factors(t *testing.T) {
	want := []string{
		"Unusually large transaction amount",
		"Potential structuring/smurfing behavior detected",
		"Account previously involved in fraudulent activity",
		"Account is relatively new",
		"Account has no KYC verification",
		"Transaction resulted in negative balance",
		"Transaction explicitly flagged as fraudulent",
	}
	rules := Parse(NewDefaultMemoryStore().Text())
	require.Len(t, rules, len(want))
	for i, rule := range rules {
		assert.Equal(t, i+1, rule.Number)
		assert.Equal(t, want[i], rule.Factor)
	}
}

func TestOpen_SeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.txt")

	store, err := Open(path)
	require.NoError(t, err)

	assert.Len(t, store.Rules(), len(DefaultRules))
	assert.Equal(t, 8, store.NextNumber())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, store.Text(), string(data))
}

func TestStore_AppendPersistsVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(DefaultRules[0]), 0o600))

	store, err := Open(path)
	require.NoError(t, err)

	garbage := "Rule 8: this line is not valid"
	require.NoError(t, store.Append(garbage))
	valid := `Rule 9: If smurfing_indicator == 1 and transaction_amount > 9000, add risk score 88, category "High", factor "Structuring"`
	require.NoError(t, store.Append(valid))

	reopened, err := Open(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(reopened.Text()), "\n")
	assert.Equal(t, []string{DefaultRules[0], garbage, valid}, lines)
	assert.Len(t, reopened.Rules(), 2)
	assert.Equal(t, 10, reopened.NextNumber())
}

func TestStore_AppendRejectsEmpty(t *testing.T) {
	store := NewMemoryStore("")
	require.Error(t, store.Append("   "))
}

func TestStore_ConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	store, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			line := FormatLine(100+n, "transaction_amount > 1", 1, model.CategoryLow, "tiny")
			assert.NoError(t, store.Append(line))
		}(i)
	}
	wg.Wait()

	require.NoError(t, store.Reload())
	assert.Len(t, store.Rules(), len(DefaultRules)+20)
}
