package chat

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
)

// Rendering limits.
const (
	MaxTableRows  = 50
	maxCategories = 30
	histogramBins = 10
	chartWidth    = 1024
	chartHeight   = 512
)

var errNoChartData = errors.New("no chartable values")

var tableTemplate = template.Must(template.New("table").Parse(`<table class="dataframe">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>`))

// RenderTable renders the first MaxTableRows rows of t as an HTML table.
func RenderTable(t Table) (string, error) {
	n := min(len(t.Rows), MaxTableRows)
	cells := make([][]string, 0, n)
	for _, row := range t.Rows[:n] {
		line := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			if v, ok := row[col]; ok {
				line[i] = formatCell(v)
			}
		}
		cells = append(cells, line)
	}

	var buf bytes.Buffer
	err := tableTemplate.Execute(&buf, struct {
		Columns []string
		Rows    [][]string
	}{Columns: t.Columns, Rows: cells})
	if err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return buf.String(), nil
}

// RenderChart draws spec from t and returns the PNG as base64.
func RenderChart(spec ChartSpec, t Table) (string, error) {
	var buf bytes.Buffer
	var err error
	switch spec.Kind {
	case ChartBar:
		err = renderBar(spec.Title, labelled(t, spec.X, spec.Y), &buf)
	case ChartPie:
		err = renderPie(spec.Title, labelled(t, spec.X, spec.Y), &buf)
	case ChartLine:
		err = renderLine(spec.Title, labelled(t, spec.X, spec.Y), &buf)
	case ChartHistogram:
		column := spec.X
		if spec.Y != "" {
			column = spec.Y
		}
		err = renderHistogram(spec.Title, numbers(t, column), &buf)
	default:
		err = fmt.Errorf("unknown chart kind %q", spec.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render %s chart: %w", spec.Kind, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// labelled pairs each row's x label with its numeric y value, keeping at
// most maxCategories points.
func labelled(t Table, x, y string) []chart.Value {
	out := make([]chart.Value, 0, min(len(t.Rows), maxCategories))
	for _, row := range t.Rows {
		if len(out) == maxCategories {
			break
		}
		label, ok := row[x]
		if !ok {
			continue
		}
		f, ok := row[y].Float()
		if !ok {
			continue
		}
		out = append(out, chart.Value{Label: formatCell(label), Value: f})
	}
	return out
}

func numbers(t Table, column string) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if f, ok := row[column].Float(); ok {
			out = append(out, f)
		}
	}
	return out
}

// valueRange spans values and zero, padded so that a flat series still
// has a non-empty range.
func valueRange(values []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.1
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}

func renderBar(title string, bars []chart.Value, w io.Writer) error {
	if len(bars) == 0 {
		return errNoChartData
	}
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Value
	}
	barWidth := min(60, max(8, (chartWidth-100)/(len(bars)*2)))
	graph := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		BarWidth:   barWidth,
		BarSpacing: barWidth / 2,
		YAxis:      chart.YAxis{Range: valueRange(values)},
		Bars:       bars,
	}
	return graph.Render(chart.PNG, w)
}

func renderPie(title string, slices []chart.Value, w io.Writer) error {
	positive := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		if s.Value > 0 {
			positive = append(positive, s)
		}
	}
	if len(positive) == 0 {
		return errNoChartData
	}
	graph := chart.PieChart{
		Title:  title,
		Width:  chartHeight,
		Height: chartHeight,
		Values: positive,
	}
	return graph.Render(chart.PNG, w)
}

func renderLine(title string, points []chart.Value, w io.Writer) error {
	if len(points) == 0 {
		return errNoChartData
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	step := max(1, len(points)/10)
	ticks := make([]chart.Tick, 0, len(points)/step+1)
	for i, p := range points {
		xs[i] = float64(i)
		ys[i] = p.Value
		if i%step == 0 {
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: p.Label})
		}
	}
	graph := chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: math.Max(1, float64(len(points)-1))},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{Range: valueRange(ys)},
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: xs, YValues: ys},
		},
	}
	return graph.Render(chart.PNG, w)
}

func renderHistogram(title string, values []float64, w io.Writer) error {
	if len(values) == 0 {
		return errNoChartData
	}
	return renderBar(title, histogram(values, histogramBins), w)
}

// histogram buckets values into n equal-width bins labelled by lower bound.
func histogram(values []float64, n int) []chart.Value {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return []chart.Value{{Label: formatFloat(lo), Value: float64(len(values))}}
	}
	width := (hi - lo) / float64(n)
	counts := make([]float64, n)
	for _, v := range values {
		i := min(int((v-lo)/width), n-1)
		counts[i]++
	}
	bins := make([]chart.Value, n)
	for i := range bins {
		bins[i] = chart.Value{Label: formatFloat(lo + float64(i)*width), Value: counts[i]}
	}
	return bins
}

func formatFloat(f float64) string {
	if math.Abs(f) >= 1000 {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.2f", f)
}
