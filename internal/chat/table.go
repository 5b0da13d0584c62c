package chat

import (
	"sort"

	"github.com/Veraticus/riskdesk/internal/model"
)

// DateColumn is derived from the timestamp so plans can group by day.
const DateColumn = "date"

// Row is one table row. Absent cells are missing from the map.
type Row map[string]model.Value

// Table is the column-oriented view the analysis interpreter works on.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable builds a table from transactions, one row each, in order.
func NewTable(txs []model.Transaction) Table {
	seen := make(map[string]struct{})
	for i := range txs {
		for k := range txs[i].ToMap() {
			seen[k] = struct{}{}
		}
	}
	hasDate := false
	if _, ok := seen[model.FieldTimestamp]; ok {
		seen[DateColumn] = struct{}{}
		hasDate = true
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([]Row, 0, len(txs))
	for i := range txs {
		row := make(Row, len(columns))
		for _, col := range columns {
			if v, ok := txs[i].Field(col); ok {
				row[col] = v
			}
		}
		if hasDate && txs[i].Timestamp != nil {
			row[DateColumn] = model.StringValue(txs[i].Timestamp.UTC().Format("2006-01-02"))
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}
}

// HasColumn reports whether name is one of the table's columns.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Records converts up to limit rows to plain maps for prompts. A limit
// below 1 converts every row.
func (t Table) Records(limit int) []map[string]any {
	n := len(t.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]map[string]any, 0, n)
	for _, row := range t.Rows[:n] {
		rec := make(map[string]any, len(row))
		for k, v := range row {
			if v.IsNum {
				rec[k] = v.Num
			} else {
				rec[k] = v.Str
			}
		}
		out = append(out, rec)
	}
	return out
}
