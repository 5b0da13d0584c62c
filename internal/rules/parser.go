// Package rules holds the plain-text rule store and the deterministic rule
// evaluator that acts as the floor under every LLM-dependent risk path.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/riskdesk/internal/model"
)

var (
	// ErrUnparseable is returned for lines that are not rules.
	ErrUnparseable = errors.New("unparseable rule")

	ruleLine = regexp.MustCompile(`(?i)^\s*rule\s+(\d+)\s*:\s*if\s+(.+?)\s*,\s*add\s+risk\s+score\s+(\d+)\s*,\s*category\s+["']?([a-z _-]+?)["']?\s*,\s*factor\s+["'](.*?)["']\s*\.?\s*$`)
	andSplit = regexp.MustCompile(`(?i)\s+and\s+`)
	clauseRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(>=|<=|==|!=|>|<|=)\s*(.+?)\s*$`)
)

// ParseLine parses one rule line of the form
//
//	Rule <n>: If <condition>, add risk score <int>, category "<cat>", factor "<text>"
func ParseLine(line string) (model.Rule, error) {
	m := ruleLine.FindStringSubmatch(line)
	if m == nil {
		return model.Rule{}, ErrUnparseable
	}

	number, err := strconv.Atoi(m[1])
	if err != nil {
		return model.Rule{}, fmt.Errorf("%w: rule number: %w", ErrUnparseable, err)
	}
	score, err := strconv.Atoi(m[3])
	if err != nil {
		return model.Rule{}, fmt.Errorf("%w: score: %w", ErrUnparseable, err)
	}
	category, err := model.ParseCategory(m[4])
	if err != nil {
		return model.Rule{}, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}
	clauses, err := ParseCondition(m[2])
	if err != nil {
		return model.Rule{}, err
	}

	return model.Rule{
		Number:    number,
		Condition: strings.TrimSpace(m[2]),
		Clauses:   clauses,
		Score:     model.ClampScore(score),
		Category:  category,
		Factor:    m[5],
		Line:      strings.TrimSpace(line),
	}, nil
}

// ParseCondition parses "<field> <op> <literal>" clauses joined by "and".
func ParseCondition(cond string) ([]model.Clause, error) {
	parts := andSplit.Split(strings.TrimSpace(cond), -1)
	clauses := make([]model.Clause, 0, len(parts))
	for _, part := range parts {
		m := clauseRe.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("%w: clause %q", ErrUnparseable, part)
		}
		op := model.Operator(m[2])
		if op == "=" {
			op = model.OpEqual
		}
		clauses = append(clauses, model.Clause{
			Field:    m[1],
			Operator: op,
			Literal:  parseLiteral(m[3]),
		})
	}
	return clauses, nil
}

func parseLiteral(raw string) model.Value {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '\'' || first == '"') && first == last {
			return model.StringValue(raw[1 : len(raw)-1])
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return model.NumberValue(f)
	}
	return model.StringValue(raw)
}

// Parse returns every well-formed rule in text, in file order. Lines that do
// not parse are skipped.
func Parse(text string) []model.Rule {
	var parsed []model.Rule
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, err := ParseLine(line)
		if err != nil {
			continue
		}
		parsed = append(parsed, rule)
	}
	return parsed
}

// FormatLine renders a rule in the canonical line format.
func FormatLine(number int, condition string, score int, category model.Category, factor string) string {
	return fmt.Sprintf("Rule %d: If %s, add risk score %d, category %q, factor %q",
		number, condition, score, string(category), factor)
}
