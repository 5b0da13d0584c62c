package rules

import (
	"errors"
	"fmt"

	"github.com/Veraticus/riskdesk/internal/model"
)

var (
	// ErrFieldMissing means the transaction lacks a field a clause needs.
	ErrFieldMissing = errors.New("field missing")
	// ErrIncomparable means a clause's operands cannot be compared.
	ErrIncomparable = errors.New("incomparable operands")
)

// Source supplies rules to the evaluator.
type Source interface {
	Rules() []model.Rule
}

// Evaluator applies a rule source to transactions.
type Evaluator struct {
	source Source
}

// NewEvaluator creates an evaluator over source.
func NewEvaluator(source Source) *Evaluator {
	return &Evaluator{source: source}
}

// Evaluate scores one transaction against the current rule set.
func (e *Evaluator) Evaluate(tx *model.Transaction) model.Verdict {
	return Evaluate(tx, e.source.Rules())
}

// Evaluate scores tx against rules. Score and category are tracked as
// separate maxima; factors accumulate in rule order without deduplication.
// A rule that cannot be evaluated against tx is skipped.
func Evaluate(tx *model.Transaction, rules []model.Rule) model.Verdict {
	verdict := model.ZeroVerdict()

	for _, rule := range rules {
		matched, err := Matches(tx, rule)
		if err != nil || !matched {
			continue
		}
		verdict.RiskScore = max(verdict.RiskScore, rule.Score)
		verdict.RiskCategory = model.MaxCategory(verdict.RiskCategory, rule.Category)
		verdict.RiskFactors = append(verdict.RiskFactors, rule.Factor)
	}

	if n := len(verdict.RiskFactors); n > 0 {
		verdict.Explanation = fmt.Sprintf("Rule-based assessment identified %d risk factors.", n)
	}
	return verdict
}

// Matches reports whether every clause of rule holds for tx.
func Matches(tx *model.Transaction, rule model.Rule) (bool, error) {
	if len(rule.Clauses) == 0 {
		return false, ErrUnparseable
	}
	for _, clause := range rule.Clauses {
		ok, err := EvalClause(tx, clause)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvalClause evaluates a single comparison against tx.
func EvalClause(tx *model.Transaction, c model.Clause) (bool, error) {
	val, ok := tx.Field(c.Field)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrFieldMissing, c.Field)
	}
	return Compare(val, c.Operator, c.Literal)
}

// Compare applies op to left and right. Numbers compare numerically when both
// sides are numeric; otherwise only equality operators are allowed.
func Compare(left model.Value, op model.Operator, right model.Value) (bool, error) {
	if right.IsNum {
		if l, ok := left.Float(); ok {
			return compareFloat(l, op, right.Num)
		}
	}
	if left.IsNum && !right.IsNum {
		if r, ok := right.Float(); ok {
			return compareFloat(left.Num, op, r)
		}
	}

	l, r := left.String(), right.String()
	switch op {
	case model.OpEqual:
		return l == r, nil
	case model.OpNotEqual:
		return l != r, nil
	default:
		return false, fmt.Errorf("%w: %q %s %q", ErrIncomparable, l, op, r)
	}
}

func compareFloat(l float64, op model.Operator, r float64) (bool, error) {
	switch op {
	case model.OpGreater:
		return l > r, nil
	case model.OpGreaterEqual:
		return l >= r, nil
	case model.OpLess:
		return l < r, nil
	case model.OpLessEqual:
		return l <= r, nil
	case model.OpEqual:
		return l == r, nil
	case model.OpNotEqual:
		return l != r, nil
	default:
		return false, fmt.Errorf("%w: operator %q", ErrIncomparable, op)
	}
}
