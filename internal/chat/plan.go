package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
)

// Interpreter limits.
const (
	MaxRows  = 10000
	MaxSteps = 16
)

// ErrPlan marks a plan the interpreter refuses to run.
var ErrPlan = errors.New("invalid analysis plan")

// Step operations.
const (
	OpFilter  = "filter"
	OpGroupBy = "group_by"
	OpSort    = "sort"
	OpLimit   = "limit"
	OpSelect  = "select"
)

// Aggregations.
const (
	AggCount = "count"
	AggSum   = "sum"
	AggMean  = "mean"
	AggMin   = "min"
	AggMax   = "max"
)

// Chart kinds.
const (
	ChartBar       = "bar"
	ChartPie       = "pie"
	ChartLine      = "line"
	ChartHistogram = "histogram"
)

var comparators = map[string]struct{}{
	">": {}, "<": {}, ">=": {}, "<=": {}, "==": {}, "!=": {},
}

// Plan is an analysis the provider proposes: steps applied in order to the
// transaction table, then an optional chart of the result.
type Plan struct {
	Chart   *ChartSpec `json:"chart,omitempty"`
	Summary string     `json:"summary"`
	Steps   []Step     `json:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Value  any      `json:"value,omitempty"`
	Agg    *Agg     `json:"agg,omitempty"`
	Op     string   `json:"op"`
	Field  string   `json:"field,omitempty"`
	Cmp    string   `json:"cmp,omitempty"`
	As     string   `json:"as,omitempty"`
	Fields []string `json:"fields,omitempty"`
	N      int      `json:"n,omitempty"`
	Desc   bool     `json:"desc,omitempty"`
}

// Agg is a group_by aggregation.
type Agg struct {
	Op    string `json:"op"`
	Field string `json:"field,omitempty"`
}

// ChartSpec describes the chart drawn from the result table.
type ChartSpec struct {
	Kind  string `json:"kind"`
	X     string `json:"x"`
	Y     string `json:"y,omitempty"`
	Title string `json:"title,omitempty"`
}

// ParsePlan extracts and validates a plan from a provider reply. Unknown
// keys, operations and chart kinds are rejected with ErrPlan.
func ParsePlan(text string) (*Plan, error) {
	payload := llm.ExtractJSON(text)
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks the plan's shape. Column names are checked during
// execution, since earlier steps change the available columns.
func (p *Plan) Validate() error {
	if len(p.Steps) > MaxSteps {
		return fmt.Errorf("%w: %d steps exceeds the limit of %d", ErrPlan, len(p.Steps), MaxSteps)
	}
	for i, step := range p.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrPlan, i, err)
		}
	}
	if p.Chart != nil {
		switch p.Chart.Kind {
		case ChartBar, ChartPie, ChartLine, ChartHistogram:
		default:
			return fmt.Errorf("%w: unknown chart kind %q", ErrPlan, p.Chart.Kind)
		}
		if p.Chart.X == "" {
			return fmt.Errorf("%w: chart needs an x column", ErrPlan)
		}
		if p.Chart.Kind != ChartHistogram && p.Chart.Y == "" {
			return fmt.Errorf("%w: %s chart needs a y column", ErrPlan, p.Chart.Kind)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Op {
	case OpFilter:
		if s.Field == "" {
			return errors.New("filter needs a field")
		}
		if _, ok := comparators[s.Cmp]; !ok {
			return fmt.Errorf("unknown comparison %q", s.Cmp)
		}
		switch s.Value.(type) {
		case float64, string, bool:
		default:
			return fmt.Errorf("filter value must be a number or string, got %T", s.Value)
		}
	case OpGroupBy:
		if s.Field == "" {
			return errors.New("group_by needs a field")
		}
		if s.Agg == nil {
			return errors.New("group_by needs an aggregation")
		}
		if s.alias() == s.Field {
			return fmt.Errorf("group_by alias %q repeats the group field", s.alias())
		}
		switch s.Agg.Op {
		case AggCount:
		case AggSum, AggMean, AggMin, AggMax:
			if s.Agg.Field == "" {
				return fmt.Errorf("%s needs a field", s.Agg.Op)
			}
		default:
			return fmt.Errorf("unknown aggregation %q", s.Agg.Op)
		}
	case OpSort:
		if s.Field == "" {
			return errors.New("sort needs a field")
		}
	case OpLimit:
		if s.N <= 0 {
			return fmt.Errorf("limit must be positive, got %d", s.N)
		}
	case OpSelect:
		if len(s.Fields) == 0 {
			return errors.New("select needs fields")
		}
	default:
		return fmt.Errorf("unknown operation %q", s.Op)
	}
	return nil
}

// Execute runs the plan's steps against t and returns the result table.
// The input is not modified.
func (p *Plan) Execute(t Table) (Table, error) {
	if len(t.Rows) > MaxRows {
		return Table{}, fmt.Errorf("%w: %d rows exceeds the limit of %d", ErrPlan, len(t.Rows), MaxRows)
	}
	if err := p.Validate(); err != nil {
		return Table{}, err
	}

	cur := Table{Columns: append([]string(nil), t.Columns...), Rows: append([]Row(nil), t.Rows...)}
	for i, step := range p.Steps {
		next, err := apply(cur, step)
		if err != nil {
			return Table{}, fmt.Errorf("%w: step %d (%s): %w", ErrPlan, i, step.Op, err)
		}
		cur = next
	}

	if p.Chart != nil {
		if !cur.HasColumn(p.Chart.X) {
			return Table{}, fmt.Errorf("%w: chart column %q not in result", ErrPlan, p.Chart.X)
		}
		if p.Chart.Y != "" && !cur.HasColumn(p.Chart.Y) {
			return Table{}, fmt.Errorf("%w: chart column %q not in result", ErrPlan, p.Chart.Y)
		}
	}
	return cur, nil
}

func apply(t Table, s Step) (Table, error) {
	for _, name := range s.columns() {
		if !t.HasColumn(name) {
			return Table{}, fmt.Errorf("unknown column %q", name)
		}
	}

	switch s.Op {
	case OpFilter:
		return filter(t, s), nil
	case OpGroupBy:
		return groupBy(t, s), nil
	case OpSort:
		return sortBy(t, s), nil
	case OpLimit:
		if s.N < len(t.Rows) {
			t.Rows = t.Rows[:s.N]
		}
		return t, nil
	case OpSelect:
		return selectColumns(t, s.Fields), nil
	}
	return Table{}, fmt.Errorf("unknown operation %q", s.Op)
}

// columns lists the input columns a step reads.
func (s Step) columns() []string {
	switch s.Op {
	case OpFilter, OpSort:
		return []string{s.Field}
	case OpGroupBy:
		if s.Agg != nil && s.Agg.Field != "" {
			return []string{s.Field, s.Agg.Field}
		}
		return []string{s.Field}
	case OpSelect:
		return s.Fields
	}
	return nil
}

func filter(t Table, s Step) Table {
	want := stepValue(s.Value)
	out := make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		v, ok := row[s.Field]
		if ok && compare(v, want, s.Cmp) {
			out = append(out, row)
		}
	}
	return Table{Columns: t.Columns, Rows: out}
}

func stepValue(v any) model.Value {
	switch x := v.(type) {
	case float64:
		return model.NumberValue(x)
	case bool:
		if x {
			return model.NumberValue(1)
		}
		return model.NumberValue(0)
	default:
		return model.StringValue(fmt.Sprint(x))
	}
}

// compare orders numerically when both sides are numbers and as strings
// otherwise.
func compare(a, b model.Value, cmp string) bool {
	var c int
	af, aok := a.Float()
	bf, bok := b.Float()
	if aok && bok {
		switch {
		case af < bf:
			c = -1
		case af > bf:
			c = 1
		}
	} else {
		switch as, bs := a.String(), b.String(); {
		case as < bs:
			c = -1
		case as > bs:
			c = 1
		}
	}

	switch cmp {
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case "==":
		return c == 0
	case "!=":
		return c != 0
	}
	return false
}

type group struct {
	key    model.Value
	values []float64
	count  int
}

// alias names a group_by's aggregate column, e.g. sum_transaction_amount
// when As is empty.
func (s Step) alias() string {
	if s.As != "" || s.Agg == nil {
		return s.As
	}
	if s.Agg.Field != "" {
		return s.Agg.Op + "_" + s.Agg.Field
	}
	return s.Agg.Op
}

func groupBy(t Table, s Step) Table {
	as := s.alias()

	var order []string
	groups := make(map[string]*group)
	for _, row := range t.Rows {
		k, ok := row[s.Field]
		if !ok {
			continue
		}
		g, seen := groups[k.String()]
		if !seen {
			g = &group{key: k}
			groups[k.String()] = g
			order = append(order, k.String())
		}
		g.count++
		if s.Agg.Field != "" {
			if f, ok := row[s.Agg.Field].Float(); ok {
				g.values = append(g.values, f)
			}
		}
	}

	rows := make([]Row, 0, len(order))
	for _, k := range order {
		g := groups[k]
		rows = append(rows, Row{s.Field: g.key, as: model.NumberValue(aggregate(s.Agg.Op, g))})
	}
	return Table{Columns: []string{s.Field, as}, Rows: rows}
}

func aggregate(op string, g *group) float64 {
	if op == AggCount {
		return float64(g.count)
	}
	if len(g.values) == 0 {
		return 0
	}
	switch op {
	case AggSum, AggMean:
		sum := 0.0
		for _, v := range g.values {
			sum += v
		}
		if op == AggMean {
			return sum / float64(len(g.values))
		}
		return sum
	case AggMin:
		m := math.Inf(1)
		for _, v := range g.values {
			m = math.Min(m, v)
		}
		return m
	case AggMax:
		m := math.Inf(-1)
		for _, v := range g.values {
			m = math.Max(m, v)
		}
		return m
	}
	return 0
}

func sortBy(t Table, s Step) Table {
	rows := append([]Row(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := rows[i][s.Field]
		b, bok := rows[j][s.Field]
		if !aok || !bok {
			// Missing values sort last.
			return aok && !bok
		}
		if s.Desc {
			return compare(a, b, ">")
		}
		return compare(a, b, "<")
	})
	return Table{Columns: t.Columns, Rows: rows}
}

func selectColumns(t Table, fields []string) Table {
	rows := make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		out := make(Row, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				out[f] = v
			}
		}
		rows = append(rows, out)
	}
	return Table{Columns: append([]string(nil), fields...), Rows: rows}
}

// formatCell renders a cell for tables and chart labels.
func formatCell(v model.Value) string {
	if !v.IsNum {
		return v.Str
	}
	if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1e15 {
		return strconv.FormatInt(int64(v.Num), 10)
	}
	return strconv.FormatFloat(v.Num, 'f', 2, 64)
}
