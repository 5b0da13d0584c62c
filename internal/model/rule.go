package model

// Operator is a comparison used in rule conditions and analysis filters.
type Operator string

// Supported comparison operators.
const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Clause is a single "<field> <op> <literal>" comparison.
type Clause struct {
	Literal  Value    `json:"literal"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
}

// Rule is one parsed line of the rule store. Clauses are joined by "and".
type Rule struct {
	Category  Category `json:"category"`
	Condition string   `json:"condition"`
	Factor    string   `json:"factor"`
	Line      string   `json:"line"`
	Clauses   []Clause `json:"clauses"`
	Number    int      `json:"number"`
	Score     int      `json:"score"`
}
