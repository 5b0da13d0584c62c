// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Category is a coarse risk label.
type Category string

// Risk categories, lowest first.
const (
	CategoryLow      Category = "Low"
	CategoryMedium   Category = "Medium"
	CategoryHigh     Category = "High"
	CategoryVeryHigh Category = "Very High"
)

// Rank orders categories Low < Medium < High < Very High. Unknown labels rank 0.
func (c Category) Rank() int {
	switch c {
	case CategoryLow:
		return 1
	case CategoryMedium:
		return 2
	case CategoryHigh:
		return 3
	case CategoryVeryHigh:
		return 4
	default:
		return 0
	}
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	return c.Rank() > 0
}

// MaxCategory returns the higher ranked of a and b.
func MaxCategory(a, b Category) Category {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseCategory normalizes provider and rule labels such as "very high",
// "VERY_HIGH" or "high".
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Trim(norm, `"'`)
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	switch norm {
	case "low":
		return CategoryLow, nil
	case "medium", "moderate":
		return CategoryMedium, nil
	case "high":
		return CategoryHigh, nil
	case "very high", "veryhigh", "critical":
		return CategoryVeryHigh, nil
	default:
		return "", fmt.Errorf("unknown risk category %q", s)
	}
}

// UnmarshalJSON accepts any spelling ParseCategory accepts.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CategoryForScore maps a 0-100 score onto the category bands
// Low 0-30, Medium 31-70, High 71-90, Very High 91-100.
func CategoryForScore(score int) Category {
	switch {
	case score <= 30:
		return CategoryLow
	case score <= 70:
		return CategoryMedium
	case score <= 90:
		return CategoryHigh
	default:
		return CategoryVeryHigh
	}
}

// ClampScore pins a score to 0-100.
func ClampScore(score int) int {
	return max(0, min(100, score))
}

// RoundScore rounds a float score half away from zero and clamps it.
func RoundScore(f float64) int {
	return ClampScore(int(math.Round(f)))
}

// Default verdict values used whenever a provider result is unavailable.
const (
	DefaultScore    = 50
	DefaultCategory = CategoryMedium
)

// Verdict is the common output of every scorer.
type Verdict struct {
	RiskCategory     Category `json:"risk_category"`
	Explanation      string   `json:"explanation"`
	RiskFactors      []string `json:"risk_factors"`
	RiskScore        int      `json:"risk_score"`
	RuleUpdateNeeded bool     `json:"rule_update_needed"`
}

// ZeroVerdict is the rule evaluator's starting point.
func ZeroVerdict() Verdict {
	return Verdict{RiskScore: 0, RiskCategory: CategoryLow, RiskFactors: []string{}}
}

// DefaultVerdict is the conservative verdict used when scoring failed.
func DefaultVerdict(explanation string) Verdict {
	return Verdict{
		RiskScore:    DefaultScore,
		RiskCategory: DefaultCategory,
		RiskFactors:  []string{},
		Explanation:  explanation,
	}
}

// Merge folds a rule verdict into an LLM verdict. The rule verdict may only
// raise the result: its score and category replace the LLM's when its score
// is strictly higher. Rule factors are always appended after the LLM's.
func Merge(llmVerdict, ruleVerdict Verdict) Verdict {
	merged := llmVerdict
	merged.RiskFactors = make([]string, 0, len(llmVerdict.RiskFactors)+len(ruleVerdict.RiskFactors))
	merged.RiskFactors = append(merged.RiskFactors, llmVerdict.RiskFactors...)
	merged.RiskFactors = append(merged.RiskFactors, ruleVerdict.RiskFactors...)
	if ruleVerdict.RiskScore > llmVerdict.RiskScore {
		merged.RiskScore = ruleVerdict.RiskScore
		merged.RiskCategory = ruleVerdict.RiskCategory
	}
	return merged
}

// CombinedVerdict is the customer-level verdict from profile and transaction signals.
type CombinedVerdict struct {
	RiskCategory   Category `json:"risk_category"`
	Explanation    string   `json:"explanation"`
	Recommendation string   `json:"recommendation"`
	RiskFactors    []string `json:"risk_factors"`
	RiskScore      int      `json:"risk_score"`
}

// TransactionSummary is the batch-level rollup the aggregator consumes.
type TransactionSummary struct {
	Total        int     `json:"total"`
	HighRisk     int     `json:"high_risk"`
	MediumRisk   int     `json:"medium_risk"`
	LowRisk      int     `json:"low_risk"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

// Summarize rolls verdicts up by category band. High and Very High count as high.
func Summarize(verdicts []Verdict) TransactionSummary {
	s := TransactionSummary{Total: len(verdicts)}
	if len(verdicts) == 0 {
		s.AvgRiskScore = DefaultScore
		return s
	}
	total := 0
	for _, v := range verdicts {
		total += v.RiskScore
		switch v.RiskCategory {
		case CategoryHigh, CategoryVeryHigh:
			s.HighRisk++
		case CategoryMedium:
			s.MediumRisk++
		default:
			s.LowRisk++
		}
	}
	s.AvgRiskScore = float64(total) / float64(len(verdicts))
	return s
}

// Stats is the compliance dashboard's aggregate view.
type Stats struct {
	HighRiskCount    int     `json:"high_risk_count"`
	AvgRiskScore     float64 `json:"avg_risk_score"`
	PatternAnomalies int     `json:"pattern_anomalies"`
	InsiderThreats   int     `json:"insider_threats"`
}

// HighRiskThreshold is the score at which a transaction counts as high risk.
const HighRiskThreshold = 70

// Dashboard statuses.
const (
	StatusValidated   = "Validated"
	StatusUnderReview = "Under Review"
	StatusFrozen      = "Frozen"
)

// RiskStatus maps a score onto the dashboard status.
func RiskStatus(score int) string {
	switch {
	case score < 30:
		return StatusValidated
	case score < 70:
		return StatusUnderReview
	default:
		return StatusFrozen
	}
}
