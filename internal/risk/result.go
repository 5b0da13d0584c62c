// Package risk scores transactions and customers. Every scorer returns a
// usable verdict; when a provider call fails the result names the fallback
// that produced it.
package risk

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/model"
)

// FallbackKind names the degraded path that produced a result.
type FallbackKind string

// Fallback kinds. FallbackNone means the provider result was used.
const (
	FallbackNone         FallbackKind = ""
	FallbackRuleOnly     FallbackKind = "rule_only"
	FallbackBatchDefault FallbackKind = "batch_default"
	FallbackMissingID    FallbackKind = "missing_id"
	FallbackMock         FallbackKind = "mock"
	FallbackMean         FallbackKind = "mean"
)

// Result carries a value together with the fallback that produced it and
// the error that forced the fallback.
type Result[T any] struct {
	Value    T
	Err      error
	Fallback FallbackKind
}

// Degraded reports whether a fallback produced the value.
func (r Result[T]) Degraded() bool {
	return r.Fallback != FallbackNone
}

// BatchResult is the output of a batch scoring call. Transactions and
// Verdicts have the same length and order as the input.
type BatchResult struct {
	Err          error
	Fallback     FallbackKind
	Transactions []model.Transaction
	Verdicts     []model.Verdict
	MissingIDs   int
}

// Degraded reports whether any verdict in the batch came from a fallback.
func (r BatchResult) Degraded() bool {
	return r.Fallback != FallbackNone
}

func recordFallback(component string, kind FallbackKind, err error, fields common.Fields) {
	common.LogFallback(component, string(kind), err, fields)
	metrics.RecordFallback(component, string(kind))
}

// flexID decodes an id sent as either a JSON string or a JSON number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction_id is neither string nor number: %s", data)
	}
	// 1001.0 and 1001 name the same transaction.
	if f64, err := n.Float64(); err == nil && f64 == float64(int64(f64)) {
		*f = flexID(strconv.FormatInt(int64(f64), 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}

// flexScore decodes a score sent as a number or a numeric string.
type flexScore float64

func (f *flexScore) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexScore(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("risk_score is neither number nor string: %s", data)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("risk_score %q: %w", s, err)
	}
	*f = flexScore(n)
	return nil
}

// providerVerdict is the loose shape providers answer with.
type providerVerdict struct {
	TransactionID    flexID    `json:"transaction_id"`
	RiskCategory     string    `json:"risk_category"`
	Explanation      string    `json:"explanation"`
	RiskExplanation  string    `json:"risk_explanation"`
	Recommendation   string    `json:"recommendation"`
	RiskFactors      []string  `json:"risk_factors"`
	RiskScore        flexScore `json:"risk_score"`
	RuleUpdateNeeded bool      `json:"rule_update_needed"`
}

// verdict normalizes the provider answer: the score is clamped and an
// unknown category is derived from the score bands.
func (p providerVerdict) verdict() model.Verdict {
	score := model.RoundScore(float64(p.RiskScore))
	category, err := model.ParseCategory(p.RiskCategory)
	if err != nil {
		category = model.CategoryForScore(score)
	}
	explanation := p.Explanation
	if explanation == "" {
		explanation = p.RiskExplanation
	}
	factors := p.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	return model.Verdict{
		RiskScore:        score,
		RiskCategory:     category,
		RiskFactors:      factors,
		Explanation:      explanation,
		RuleUpdateNeeded: p.RuleUpdateNeeded,
	}
}
