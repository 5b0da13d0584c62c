// Package chat answers free-text questions about a customer's transactions.
// Questions are classified, then either answered directly or turned into an
// analysis plan that a small interpreter runs against the transaction table.
// The provider never supplies code; plans are data checked against an
// allow-list of operations.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/prompts"
	"github.com/Veraticus/riskdesk/internal/service"
)

const (
	pipelineComponent = "chat_pipeline"
	sampleRows        = 5
	explainRows       = 20
)

// User-facing messages.
const (
	NoDataMessage        = "I couldn't find any transaction data for customer ID %s. Please check the customer ID and try again."
	NoCustomerMessage    = "Please provide a customer ID so I can look up your transaction data."
	EmptyQueryMessage    = "Please ask a question about your transactions."
	NotConfiguredMessage = "I'm unable to analyze your data right now because the AI service is not properly configured. Please contact technical support to set up the required API key."
)

// FallbackKind names the degraded path a chat answer took.
type FallbackKind string

// Chat fallbacks.
const (
	FallbackNone        FallbackKind = ""
	FallbackCannedText  FallbackKind = "canned_text"
	FallbackCannedChart FallbackKind = "canned_chart"
)

// Query is one chat request.
type Query struct {
	Text       string `json:"query"`
	CustomerID string `json:"customer_id"`
}

// Output is the analysis artifact attached to a data answer.
type Output struct {
	Summary       string `json:"summary"`
	Visualization string `json:"visualization,omitempty"`
	DataframeHTML string `json:"dataframe_html,omitempty"`
}

// Result is the pipeline's answer. Err records what went wrong on a degraded
// path; Response is always set.
type Result struct {
	Err                 error        `json:"-"`
	Output              *Output      `json:"output,omitempty"`
	Class               Class        `json:"class,omitempty"`
	Response            string       `json:"response"`
	Fallback            FallbackKind `json:"fallback,omitempty"`
	ExplanationFallback bool         `json:"explanation_fallback,omitempty"`
}

// Pipeline routes queries through classification, analysis and explanation.
type Pipeline struct {
	client     llm.Client
	source     service.TransactionSource
	classifier *Classifier
	prompts    *prompts.Builder
}

// NewPipeline creates a chat pipeline.
func NewPipeline(client llm.Client, source service.TransactionSource, classifier *Classifier) (*Pipeline, error) {
	if client == nil {
		return nil, common.NewConfigError(pipelineComponent, errors.New("no LLM client"))
	}
	if source == nil {
		return nil, common.NewConfigError(pipelineComponent, errors.New("no transaction source"))
	}
	if classifier == nil {
		var err error
		if classifier, err = NewClassifier(client, nil); err != nil {
			return nil, err
		}
	}
	return &Pipeline{client: client, source: source, classifier: classifier, prompts: prompts.MustNew()}, nil
}

// Handle answers q. It never fails: provider and interpreter errors produce
// canned text or a canned chart, recorded in Result.Fallback.
func (p *Pipeline) Handle(ctx context.Context, q Query) Result {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{Response: EmptyQueryMessage, Err: common.ErrInvalidInput}
	}

	var txs []model.Transaction
	if q.CustomerID != "" {
		var err error
		txs, err = p.source.TransactionsForCustomer(ctx, q.CustomerID)
		if err != nil {
			common.LogError(err, "Failed to load transactions for chat", common.Fields{"customer_id": q.CustomerID})
		}
		if len(txs) == 0 {
			return p.noData(q.CustomerID, "", err)
		}
	}

	class := p.classifier.Classify(ctx, text)
	if class == ClassNoTransactions {
		res := p.direct(ctx, text)
		res.Class = class
		record(res)
		return res
	}

	if len(txs) == 0 {
		return p.noData(q.CustomerID, class, nil)
	}

	res := p.analyze(ctx, q.CustomerID, text, txs)
	res.Class = class
	record(res)
	return res
}

func (p *Pipeline) noData(customerID string, class Class, err error) Result {
	msg := NoCustomerMessage
	if customerID != "" {
		msg = fmt.Sprintf(NoDataMessage, customerID)
	}
	if err == nil {
		err = common.ErrDataNotFound
	}
	metrics.ChatQueries.WithLabelValues(string(class), "no_data").Inc()
	return Result{Class: class, Response: msg, Err: err}
}

// direct answers a question that needs no data.
func (p *Pipeline) direct(ctx context.Context, query string) Result {
	answer, err := p.complete(ctx, "direct answer", func() (string, error) {
		return p.prompts.DirectAnswer(query)
	})
	if err != nil {
		common.LogFallback(pipelineComponent, string(FallbackCannedText), err, nil)
		return Result{Response: FraudTip(query), Fallback: FallbackCannedText, Err: err}
	}
	return Result{Response: answer}
}

// analyze runs a provider plan, or a canned one when the plan cannot be
// obtained or run, then asks for an explanation of the result.
func (p *Pipeline) analyze(ctx context.Context, customerID, query string, txs []model.Transaction) Result {
	table := NewTable(txs)
	res := Result{}

	plan, resultTable, err := p.providerPlan(ctx, query, table)
	if err != nil {
		common.LogFallback(pipelineComponent, string(FallbackCannedChart), err, common.Fields{"customer_id": customerID})
		res.Fallback = FallbackCannedChart
		res.Err = err
		plan, resultTable = cannedAnalysis(query, table)
	}

	out, err := renderOutput(plan, resultTable)
	if err != nil && res.Fallback == FallbackNone {
		// The provider's chart could not be drawn; use a canned one.
		common.LogFallback(pipelineComponent, string(FallbackCannedChart), err, common.Fields{"customer_id": customerID})
		res.Fallback = FallbackCannedChart
		res.Err = err
		plan, resultTable = cannedAnalysis(query, table)
		out, _ = renderOutput(plan, resultTable)
	}
	res.Output = out

	explanation, err := p.complete(ctx, "explain analysis", func() (string, error) {
		return p.prompts.Explain(prompts.ExplainData{
			CustomerID: customerID,
			Query:      query,
			Summary:    out.Summary,
			Rows:       resultTable.Records(explainRows),
		})
	})
	if err != nil {
		common.LogFallback(pipelineComponent, "explanation", err, common.Fields{"customer_id": customerID})
		res.ExplanationFallback = true
		if res.Err == nil {
			res.Err = err
		}
		explanation = out.Summary
		if res.Fallback != FallbackNone {
			explanation = OfflineSummary(query, txs)
		}
	}
	res.Response = explanation
	return res
}

func (p *Pipeline) providerPlan(ctx context.Context, query string, table Table) (*Plan, Table, error) {
	reply, err := p.complete(ctx, "analysis plan", func() (string, error) {
		return p.prompts.AnalysisPlan(prompts.PlanData{
			Query:    query,
			Columns:  table.Columns,
			Sample:   table.Records(sampleRows),
			RowCount: len(table.Rows),
		})
	})
	if err != nil {
		return nil, Table{}, err
	}
	plan, err := ParsePlan(reply)
	if err != nil {
		return nil, Table{}, err
	}
	result, err := plan.Execute(table)
	if err != nil {
		return nil, Table{}, err
	}
	slog.Debug("Executed analysis plan", "steps", len(plan.Steps), "rows", len(result.Rows))
	return plan, result, nil
}

// cannedAnalysis runs the query's canned plan, falling back to the amount
// plan, which only needs columns every transaction has.
func cannedAnalysis(query string, table Table) (*Plan, Table) {
	plan := ChooseCannedChart(query).Plan()
	result, err := plan.Execute(table)
	if err == nil && len(result.Rows) > 0 {
		return plan, result
	}
	plan = CannedAmount.Plan()
	result, err = plan.Execute(table)
	if err != nil {
		return plan, table
	}
	return plan, result
}

// renderOutput draws the plan's chart and table. The output is usable even
// when the chart fails; the error reports the chart failure.
func renderOutput(plan *Plan, t Table) (*Output, error) {
	out := &Output{Summary: plan.Summary}
	if out.Summary == "" {
		out.Summary = fmt.Sprintf("Analysis returned %d rows.", len(t.Rows))
	}

	html, err := RenderTable(t)
	if err != nil {
		return out, err
	}
	out.DataframeHTML = html

	if plan.Chart == nil {
		return out, nil
	}
	img, err := RenderChart(*plan.Chart, t)
	if err != nil {
		return out, err
	}
	out.Visualization = img
	return out, nil
}

// complete renders a prompt and sends it, wrapping provider failures.
func (p *Pipeline) complete(ctx context.Context, op string, render func() (string, error)) (string, error) {
	prompt, err := render()
	if err != nil {
		return "", err
	}
	resp, err := p.client.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return "", common.ProviderError(op, err)
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", common.ProviderError(op, errors.New("empty response"))
	}
	return answer, nil
}

func record(res Result) {
	path := "ok"
	if res.Fallback != FallbackNone {
		path = string(res.Fallback)
	}
	metrics.ChatQueries.WithLabelValues(string(res.Class), path).Inc()
}
