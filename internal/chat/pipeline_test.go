package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/testutil"
)

var errChatDown = errors.New("provider down")

// chatRoutes scripts one reply per prompt kind. An empty reply fails.
type chatRoutes struct {
	classify, plan, explain, direct string
}

func (r chatRoutes) responder(req llm.Request) (string, error) {
	var reply string
	switch {
	case strings.Contains(req.Prompt, "Answer with exactly one word"):
		reply = r.classify
	case strings.Contains(req.Prompt, "ANALYSIS RESULT"):
		reply = r.explain
	case strings.Contains(req.Prompt, "analysis plan"):
		reply = r.plan
	case strings.Contains(req.Prompt, "banking fraud detection assistant"):
		reply = r.direct
	}
	if reply == "" {
		return "", errChatDown
	}
	return reply, nil
}

const methodPlan = `{
  "summary": "Spend by method",
  "steps": [
    {"op": "group_by", "field": "method_of_transaction", "agg": {"op": "sum", "field": "transaction_amount"}, "as": "total"},
    {"op": "sort", "field": "total", "desc": true}
  ],
  "chart": {"kind": "bar", "x": "method_of_transaction", "y": "total", "title": "Spend by method"}
}`

func newTestPipeline(t *testing.T, routes chatRoutes) (*Pipeline, *llm.MockClient) {
	t.Helper()
	db := testutil.SetupTestDB(t, chatFixture())
	mock := &llm.MockClient{Responder: routes.responder}
	p, err := NewPipeline(mock, db.Storage, nil)
	require.NoError(t, err)
	return p, mock
}

func TestPipeline_Analyze(t *testing.T) {
	p, mock := newTestPipeline(t, chatRoutes{plan: methodPlan, explain: "You spend most through UPI."})

	res := p.Handle(context.Background(), Query{Text: "Show my spend by payment method", CustomerID: "C1"})

	require.NoError(t, res.Err)
	assert.Equal(t, ClassTransactions, res.Class)
	assert.Equal(t, FallbackNone, res.Fallback)
	assert.False(t, res.ExplanationFallback)
	assert.Equal(t, "You spend most through UPI.", res.Response)

	require.NotNil(t, res.Output)
	assert.Equal(t, "Spend by method", res.Output.Summary)
	assert.NotEmpty(t, res.Output.Visualization)
	assert.Contains(t, res.Output.DataframeHTML, "<td>UPI</td><td>2540</td>")

	assert.Zero(t, mock.CallsContaining("Answer with exactly one word"), "keywords skip the classifier")
	assert.Equal(t, 1, mock.CallsContaining("analysis plan"))
	assert.Equal(t, 1, mock.CallsContaining("ANALYSIS RESULT"))
}

func TestPipeline_AnalysisFallbacks(t *testing.T) {
	tests := []struct {
		routes          chatRoutes
		wantErr         error
		name            string
		query           string
		wantFallback    FallbackKind
		wantExplainFall bool
	}{
		{
			name:         "plan with disallowed operation",
			query:        "Show my spend by payment method",
			routes:       chatRoutes{plan: `{"steps": [{"op": "exec", "code": "rm -rf /"}]}`, explain: "explained"},
			wantFallback: FallbackCannedChart,
			wantErr:      ErrPlan,
		},
		{
			name:         "plan that is not json",
			query:        "Show my spend by payment method",
			routes:       chatRoutes{plan: "df.groupby('method').sum()", explain: "explained"},
			wantFallback: FallbackCannedChart,
			wantErr:      ErrPlan,
		},
		{
			name:         "plan provider failure",
			query:        "Show my spend by payment method",
			routes:       chatRoutes{explain: "explained"},
			wantFallback: FallbackCannedChart,
			wantErr:      common.ErrProvider,
		},
		{
			name:  "chart with nothing to draw",
			query: "Show my spend by payment method",
			routes: chatRoutes{
				plan:    `{"summary": "Huge ones", "steps": [{"op": "filter", "field": "transaction_amount", "cmp": ">", "value": 1000000}], "chart": {"kind": "histogram", "x": "transaction_amount"}}`,
				explain: "explained",
			},
			wantFallback: FallbackCannedChart,
		},
		{
			name:            "explanation failure",
			query:           "Show my spend by payment method",
			routes:          chatRoutes{plan: methodPlan},
			wantFallback:    FallbackNone,
			wantExplainFall: true,
			wantErr:         common.ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPipeline(t, tt.routes)

			res := p.Handle(context.Background(), Query{Text: tt.query, CustomerID: "C1"})

			assert.Equal(t, tt.wantFallback, res.Fallback)
			assert.Equal(t, tt.wantExplainFall, res.ExplanationFallback)
			require.Error(t, res.Err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}

			require.NotNil(t, res.Output)
			assert.NotEmpty(t, res.Output.Visualization)
			assert.NotEmpty(t, res.Output.DataframeHTML)

			if tt.wantExplainFall {
				assert.Equal(t, res.Output.Summary, res.Response)
			} else {
				assert.Equal(t, "explained", res.Response)
			}
		})
	}
}

func TestPipeline_EverythingDown(t *testing.T) {
	p, _ := newTestPipeline(t, chatRoutes{})
	query := "Show my transactions by location"

	res := p.Handle(context.Background(), Query{Text: query, CustomerID: "C1"})

	assert.Equal(t, FallbackCannedChart, res.Fallback)
	assert.True(t, res.ExplanationFallback)
	assert.ErrorIs(t, res.Err, common.ErrProvider)
	require.NotNil(t, res.Output)
	assert.Equal(t, "Transactions by location", res.Output.Summary)
	assert.NotEmpty(t, res.Output.Visualization)
	assert.Equal(t, OfflineSummary(query, chatFixture()), res.Response)
}

func TestPipeline_Direct(t *testing.T) {
	const query = "How do I keep my card safe?"

	t.Run("provider answer", func(t *testing.T) {
		p, mock := newTestPipeline(t, chatRoutes{classify: "NO_TRANSACTIONS", direct: "Never share your PIN."})

		res := p.Handle(context.Background(), Query{Text: query, CustomerID: "C1"})

		require.NoError(t, res.Err)
		assert.Equal(t, ClassNoTransactions, res.Class)
		assert.Equal(t, "Never share your PIN.", res.Response)
		assert.Nil(t, res.Output)
		assert.Equal(t, FallbackNone, res.Fallback)
		assert.Zero(t, mock.CallsContaining("analysis plan"))
	})

	t.Run("canned tip", func(t *testing.T) {
		p, _ := newTestPipeline(t, chatRoutes{classify: "NO_TRANSACTIONS"})

		res := p.Handle(context.Background(), Query{Text: query, CustomerID: "C1"})

		assert.ErrorIs(t, res.Err, common.ErrProvider)
		assert.Equal(t, FallbackCannedText, res.Fallback)
		assert.Equal(t, FraudTip(query), res.Response)
	})

	t.Run("classifier down means no data path", func(t *testing.T) {
		p, mock := newTestPipeline(t, chatRoutes{direct: "Use two-factor authentication."})

		res := p.Handle(context.Background(), Query{Text: query, CustomerID: "C1"})

		assert.Equal(t, ClassNoTransactions, res.Class)
		assert.Equal(t, "Use two-factor authentication.", res.Response)
		assert.Equal(t, 1, mock.CallsContaining("Answer with exactly one word"))
	})

	t.Run("no customer needed", func(t *testing.T) {
		p, _ := newTestPipeline(t, chatRoutes{classify: "NO_TRANSACTIONS", direct: "Call your bank."})

		res := p.Handle(context.Background(), Query{Text: query})

		require.NoError(t, res.Err)
		assert.Equal(t, "Call your bank.", res.Response)
	})
}

func TestPipeline_NoData(t *testing.T) {
	tests := []struct {
		query    Query
		wantErr  error
		name     string
		want     string
		wantCall int
	}{
		{
			name:    "unknown customer",
			query:   Query{Text: "Show my transactions", CustomerID: "C404"},
			want:    fmt.Sprintf(NoDataMessage, "C404"),
			wantErr: common.ErrDataNotFound,
		},
		{
			name:    "unknown customer asking a general question",
			query:   Query{Text: "How do I keep my card safe?", CustomerID: "C404"},
			want:    fmt.Sprintf(NoDataMessage, "C404"),
			wantErr: common.ErrDataNotFound,
		},
		{
			name:    "empty query",
			query:   Query{Text: "   ", CustomerID: "C1"},
			want:    EmptyQueryMessage,
			wantErr: common.ErrInvalidInput,
		},
		{
			name:    "data question without a customer",
			query:   Query{Text: "Show my transactions"},
			want:    NoCustomerMessage,
			wantErr: common.ErrDataNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newTestPipeline(t, chatRoutes{classify: "TRANSACTIONS", direct: "should not be used"})

			res := p.Handle(context.Background(), tt.query)

			assert.Equal(t, tt.want, res.Response)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.Nil(t, res.Output)
			assert.Equal(t, tt.wantCall, mock.CallCount())
		})
	}
}

func TestNewPipeline_Config(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)

	_, err := NewPipeline(nil, db.Storage, nil)
	assert.True(t, common.IsConfigError(err))

	_, err = NewPipeline(llm.NewMockClient(), nil, nil)
	assert.True(t, common.IsConfigError(err))
}
