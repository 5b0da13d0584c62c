package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/model"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{
			name: "fenced plan",
			reply: "Here you go:\n```json\n" + `{"summary": "Spend by method",
				"steps": [{"op": "group_by", "field": "method_of_transaction", "agg": {"op": "sum", "field": "transaction_amount"}, "as": "total"}],
				"chart": {"kind": "bar", "x": "method_of_transaction", "y": "total", "title": "Spend"}}` + "\n```",
		},
		{name: "no chart", reply: `{"summary": "Large ones", "steps": [{"op": "filter", "field": "transaction_amount", "cmp": ">", "value": 1000}]}`},
		{name: "not json", reply: "df.groupby('method').sum()", wantErr: true},
		{name: "unknown operation", reply: `{"steps": [{"op": "eval", "field": "x"}]}`, wantErr: true},
		{name: "unknown key", reply: `{"steps": [{"op": "limit", "n": 3, "code": "import os"}]}`, wantErr: true},
		{name: "unknown comparison", reply: `{"steps": [{"op": "filter", "field": "a", "cmp": "~", "value": 1}]}`, wantErr: true},
		{name: "object filter value", reply: `{"steps": [{"op": "filter", "field": "a", "cmp": "==", "value": {"x": 1}}]}`, wantErr: true},
		{name: "unknown aggregation", reply: `{"steps": [{"op": "group_by", "field": "a", "agg": {"op": "median", "field": "b"}}]}`, wantErr: true},
		{name: "sum without field", reply: `{"steps": [{"op": "group_by", "field": "a", "agg": {"op": "sum"}}]}`, wantErr: true},
		{name: "alias repeats group field", reply: `{"steps": [{"op": "group_by", "field": "method_of_transaction", "agg": {"op": "count"}, "as": "method_of_transaction"}]}`, wantErr: true},
		{name: "default alias repeats group field", reply: `{"steps": [{"op": "group_by", "field": "count", "agg": {"op": "count"}}]}`, wantErr: true},
		{name: "zero limit", reply: `{"steps": [{"op": "limit", "n": 0}]}`, wantErr: true},
		{name: "unknown chart kind", reply: `{"steps": [], "chart": {"kind": "radar", "x": "a", "y": "b"}}`, wantErr: true},
		{name: "bar without y", reply: `{"steps": [], "chart": {"kind": "bar", "x": "a"}}`, wantErr: true},
		{name: "histogram without y", reply: `{"steps": [], "chart": {"kind": "histogram", "x": "transaction_amount"}}`},
		{
			name:    "too many steps",
			reply:   `{"steps": [` + repeat(`{"op": "limit", "n": 1}`, MaxSteps+1) + `]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPlan)
				assert.Nil(t, plan)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, plan)
		})
	}
}

func repeat(s string, n int) string {
	out := s
	for i := 1; i < n; i++ {
		out += "," + s
	}
	return out
}

func column(t *testing.T, tbl Table, name string) []string {
	t.Helper()
	out := make([]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		out = append(out, formatCell(row[name]))
	}
	return out
}

func TestPlan_Execute(t *testing.T) {
	table := NewTable(chatFixture())

	tests := []struct {
		name     string
		steps    []Step
		column   string
		want     []string
		wantCols []string
	}{
		{
			name:   "numeric filter",
			steps:  []Step{{Op: OpFilter, Field: model.FieldAmount, Cmp: ">", Value: 500.0}},
			column: model.FieldTransactionID,
			want:   []string{"T-2", "T-4"},
		},
		{
			name:   "string filter",
			steps:  []Step{{Op: OpFilter, Field: model.FieldLocation, Cmp: "!=", Value: "Mumbai"}},
			column: model.FieldTransactionID,
			want:   []string{"T-2", "T-3", "T-5"},
		},
		{
			name:   "flag filter",
			steps:  []Step{{Op: OpFilter, Field: model.FieldLabelForFraud, Cmp: "==", Value: 1.0}},
			column: model.FieldTransactionID,
			want:   []string{"T-3"},
		},
		{
			name: "count by method keeps first-seen order on ties",
			steps: []Step{
				{Op: OpGroupBy, Field: model.FieldMethod, Agg: &Agg{Op: AggCount}, As: "n"},
				{Op: OpSort, Field: "n", Desc: true},
			},
			column:   model.FieldMethod,
			want:     []string{"ATM", "UPI", "Card"},
			wantCols: []string{model.FieldMethod, "n"},
		},
		{
			name: "sum, sort and limit",
			steps: []Step{
				{Op: OpGroupBy, Field: model.FieldMethod, Agg: &Agg{Op: AggSum, Field: model.FieldAmount}, As: "total"},
				{Op: OpSort, Field: "total", Desc: true},
				{Op: OpLimit, N: 2},
			},
			column: "total",
			want:   []string{"2540", "900"},
		},
		{
			name:     "default aggregate column name",
			steps:    []Step{{Op: OpGroupBy, Field: model.FieldMethod, Agg: &Agg{Op: AggMean, Field: model.FieldAmount}}},
			column:   "mean_transaction_amount",
			want:     []string{"80", "1270", "900"},
			wantCols: []string{model.FieldMethod, "mean_transaction_amount"},
		},
		{
			name:   "min",
			steps:  []Step{{Op: OpGroupBy, Field: model.FieldLocation, Agg: &Agg{Op: AggMin, Field: model.FieldAmount}, As: "v"}},
			column: "v",
			want:   []string{"100", "40", "60"},
		},
		{
			name:   "max",
			steps:  []Step{{Op: OpGroupBy, Field: model.FieldLocation, Agg: &Agg{Op: AggMax, Field: model.FieldAmount}, As: "v"}},
			column: "v",
			want:   []string{"900", "2500", "60"},
		},
		{
			name:     "select",
			steps:    []Step{{Op: OpSelect, Fields: []string{model.FieldTransactionID, model.FieldAmount}}, {Op: OpSort, Field: model.FieldAmount}},
			column:   model.FieldTransactionID,
			want:     []string{"T-3", "T-5", "T-1", "T-4", "T-2"},
			wantCols: []string{model.FieldTransactionID, model.FieldAmount},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &Plan{Steps: tt.steps}
			got, err := plan.Execute(table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, column(t, got, tt.column))
			if tt.wantCols != nil {
				assert.Equal(t, tt.wantCols, got.Columns)
			}
		})
	}

	assert.Len(t, table.Rows, 5, "input table untouched")
}

func TestPlan_ExecuteRejects(t *testing.T) {
	table := NewTable(chatFixture())

	tests := []struct {
		name string
		plan Plan
	}{
		{name: "unknown column", plan: Plan{Steps: []Step{{Op: OpSort, Field: "password"}}}},
		{
			name: "column dropped by earlier step",
			plan: Plan{Steps: []Step{
				{Op: OpSelect, Fields: []string{model.FieldAmount}},
				{Op: OpSort, Field: model.FieldMethod},
			}},
		},
		{name: "chart column missing", plan: Plan{Chart: &ChartSpec{Kind: ChartBar, X: "nope", Y: model.FieldAmount}}},
		{name: "unknown operation", plan: Plan{Steps: []Step{{Op: "drop_table"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.plan.Execute(table)
			assert.ErrorIs(t, err, ErrPlan)
		})
	}

	t.Run("row cap", func(t *testing.T) {
		big := Table{Columns: []string{"a"}, Rows: make([]Row, MaxRows+1)}
		_, err := (&Plan{}).Execute(big)
		assert.ErrorIs(t, err, ErrPlan)
	})
}

func TestNewTable(t *testing.T) {
	table := NewTable(chatFixture())
	for _, col := range []string{model.FieldTransactionID, model.FieldAmount, model.FieldMethod, DateColumn} {
		assert.True(t, table.HasColumn(col), col)
	}
	assert.Equal(t, "2024-03-01", table.Rows[0][DateColumn].Str)

	recs := table.Records(2)
	require.Len(t, recs, 2)
	assert.Equal(t, "T-1", recs[0][model.FieldTransactionID])
	assert.InDelta(t, 100.0, recs[0][model.FieldAmount], 0.0001)
}
