// Package prompts renders the LLM prompts used by the risk and chat
// pipelines from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/Veraticus/riskdesk/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names.
const (
	BatchRisk       = "batch_risk"
	TransactionRisk = "transaction_risk"
	ProfileRisk     = "profile_risk"
	CombinedRisk    = "combined_risk"
	RuleUpdate      = "rule_update"
	Classify        = "classify"
	AnalysisPlan    = "analysis_plan"
	Explain         = "explain"
	DirectAnswer    = "direct_answer"
)

var names = []string{
	BatchRisk, TransactionRisk, ProfileRisk, CombinedRisk, RuleUpdate,
	Classify, AnalysisPlan, Explain, DirectAnswer,
}

// Builder renders prompts from the embedded templates.
type Builder struct {
	templates map[string]*template.Template
}

// New parses every embedded template.
func New() (*Builder, error) {
	b := &Builder{templates: make(map[string]*template.Template, len(names))}

	funcMap := template.FuncMap{
		"json": toJSON,
		"join": strings.Join,
	}

	for _, name := range names {
		filename := fmt.Sprintf("templates/%s.tmpl", name)
		tmpl, err := template.New(name + ".tmpl").Funcs(funcMap).ParseFS(templateFS, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		b.templates[name] = tmpl
	}
	return b, nil
}

// MustNew is New for package-level defaults; the templates are embedded so a
// parse failure is a build defect.
func MustNew() *Builder {
	b, err := New()
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) render(name string, data any) (string, error) {
	tmpl, ok := b.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

func toJSON(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// BatchRiskData feeds the batch transaction prompt.
type BatchRiskData struct {
	Rules        string
	Transactions []map[string]any
}

// BatchRisk renders the batch scoring prompt.
func (b *Builder) BatchRisk(rules string, txs []model.Transaction) (string, error) {
	data := BatchRiskData{Rules: rules, Transactions: make([]map[string]any, 0, len(txs))}
	for i := range txs {
		data.Transactions = append(data.Transactions, txs[i].SourceFields())
	}
	return b.render(BatchRisk, data)
}

// TransactionRisk renders the single-transaction scoring prompt.
func (b *Builder) TransactionRisk(rules string, tx *model.Transaction) (string, error) {
	return b.render(TransactionRisk, struct {
		Transaction map[string]any
		Rules       string
	}{Rules: rules, Transaction: tx.SourceFields()})
}

// ProfileRisk renders the KYC profile prompt.
func (b *Builder) ProfileRisk(profile *model.KYCProfile) (string, error) {
	return b.render(ProfileRisk, struct{ Profile *model.KYCProfile }{Profile: profile})
}

// CombinedRisk renders the aggregation prompt. It never sees transactions.
func (b *Builder) CombinedRisk(profile model.Verdict, summary model.TransactionSummary) (string, error) {
	return b.render(CombinedRisk, struct {
		Profile model.Verdict
		Summary model.TransactionSummary
	}{Profile: profile, Summary: summary})
}

// RuleUpdate renders the rule mutation prompt.
func (b *Builder) RuleUpdate(rules string, nextNumber int, tx *model.Transaction, verdict model.Verdict) (string, error) {
	return b.render(RuleUpdate, struct {
		Transaction map[string]any
		Rules       string
		Verdict     model.Verdict
		NextNumber  int
	}{Rules: rules, NextNumber: nextNumber, Transaction: tx.SourceFields(), Verdict: verdict})
}

// ClassifyQuery renders the chat classification prompt.
func (b *Builder) ClassifyQuery(query string) (string, error) {
	return b.render(Classify, struct{ Query string }{Query: query})
}

// PlanData feeds the analysis plan prompt.
type PlanData struct {
	Query    string
	Columns  []string
	Sample   []map[string]any
	RowCount int
}

// AnalysisPlan renders the prompt asking for a JSON analysis plan.
func (b *Builder) AnalysisPlan(data PlanData) (string, error) {
	return b.render(AnalysisPlan, data)
}

// ExplainData feeds the explanation prompt.
type ExplainData struct {
	CustomerID string
	Query      string
	Summary    string
	Rows       []map[string]any
}

// Explain renders the prompt that turns an analysis result into prose.
func (b *Builder) Explain(data ExplainData) (string, error) {
	return b.render(Explain, data)
}

// DirectAnswer renders the prompt for questions that need no data.
func (b *Builder) DirectAnswer(query string) (string, error) {
	return b.render(DirectAnswer, struct{ Query string }{Query: query})
}
