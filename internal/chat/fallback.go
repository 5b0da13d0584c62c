package chat

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/riskdesk/internal/model"
)

var fraudTips = []string{
	"To identify fraud, look for unexpected transactions, calls from unknown numbers claiming to be your bank, or requests for personal information.",
	"Common signs of fraud include unexpected withdrawals, purchases you didn't make, and notifications about password changes you didn't request.",
	"If you suspect fraud, contact your bank immediately through their official phone number, freeze your accounts, and change your passwords.",
	"To protect your account, use strong unique passwords, enable two-factor authentication, and never share your banking details with anyone who contacts you first.",
}

const capabilitiesMessage = "I can help you analyze your transaction data, including fraud detection, transaction methods, amounts, and patterns. What would you like to know?"

// pick chooses an entry by hashing query, so a repeated question gets the
// same answer.
func pick(query string, options []string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	return options[h.Sum32()%uint32(len(options))] //nolint:gosec // len is a small constant
}

// FraudTip is the canned answer for questions that need no data.
func FraudTip(query string) string {
	return pick(query, fraudTips)
}

// digest is the offline rollup of a customer's transactions.
type digest struct {
	methods    map[string]int
	topMethod  string
	total      decimal.Decimal
	average    decimal.Decimal
	count      int
	fraudCount int
	fraudPct   float64
}

func digestOf(txs []model.Transaction) digest {
	d := digest{methods: make(map[string]int), count: len(txs), topMethod: "Unknown"}
	for i := range txs {
		d.total = d.total.Add(txs[i].Amount)
		if txs[i].IsFraudLabelled() {
			d.fraudCount++
		}
		method := txs[i].Method
		if method == "" {
			method = "Unknown"
		}
		d.methods[method]++
	}
	if d.count > 0 {
		d.average = d.total.Div(decimal.NewFromInt(int64(d.count)))
		d.fraudPct = float64(d.fraudCount) / float64(d.count) * 100
	}
	best := 0
	for _, m := range sortedKeys(d.methods) {
		if d.methods[m] > best {
			best = d.methods[m]
			d.topMethod = m
		}
	}
	return d
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OfflineSummary answers from simple aggregates when analysis is unavailable.
// The query's keywords pick the figure reported.
func OfflineSummary(query string, txs []model.Transaction) string {
	if len(txs) == 0 {
		return FraudTip(query)
	}
	d := digestOf(txs)
	q := strings.ToLower(query)

	switch {
	case strings.Contains(q, "fraud") || strings.Contains(q, "suspicious"):
		return fmt.Sprintf("I found %d transactions flagged as potential fraud, representing %.1f%% of your total transactions.",
			d.fraudCount, d.fraudPct)
	case strings.Contains(q, "total") && strings.Contains(q, "amount"):
		return fmt.Sprintf("The total amount across all your transactions is %s.", d.total.StringFixed(2))
	case strings.Contains(q, "average"):
		return fmt.Sprintf("The average transaction amount is %s.", d.average.StringFixed(2))
	case strings.Contains(q, "method") || strings.Contains(q, "payment"):
		parts := make([]string, 0, len(d.methods))
		for _, m := range sortedKeys(d.methods) {
			parts = append(parts, fmt.Sprintf("%s: %d", m, d.methods[m]))
		}
		return fmt.Sprintf("Your transaction methods breakdown: %s. The most common method is %s.",
			strings.Join(parts, ", "), d.topMethod)
	case strings.Contains(q, "help") || strings.Contains(q, "can you"):
		return capabilitiesMessage
	}

	return pick(query, []string{
		fmt.Sprintf("Based on your transaction data, you have %d transactions, with %d flagged as potential fraud.", d.count, d.fraudCount),
		fmt.Sprintf("Your account shows %d suspicious transactions out of %d total transactions.", d.fraudCount, d.count),
		fmt.Sprintf("You have a total of %d transactions, with approximately %.1f%% flagged as potential fraud.", d.count, d.fraudPct),
		fmt.Sprintf("The total amount across all your transactions is %s.", d.total.StringFixed(2)),
		fmt.Sprintf("Your most frequently used transaction method is %s.", d.topMethod),
	})
}

// CannedChart names one of the fixed fallback analyses.
type CannedChart string

// Canned charts.
const (
	CannedFraud    CannedChart = "fraud"
	CannedMethod   CannedChart = "method"
	CannedAmount   CannedChart = "amount"
	CannedTrend    CannedChart = "trend"
	CannedLocation CannedChart = "location"
)

// ChooseCannedChart picks the fallback chart from the query's keywords.
// Amount is the default.
func ChooseCannedChart(query string) CannedChart {
	q := strings.ToLower(query)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("fraud", "suspicious", "risk"):
		return CannedFraud
	case has("method", "payment", "channel"):
		return CannedMethod
	case has("trend", "over time", "daily", "monthly", "history", "when"):
		return CannedTrend
	case has("location", "where", "city", "place"):
		return CannedLocation
	default:
		return CannedAmount
	}
}

// Plan returns the fixed analysis plan behind the canned chart.
func (c CannedChart) Plan() *Plan {
	count := func(field, title string, kind string) *Plan {
		return &Plan{
			Summary: title,
			Steps: []Step{
				{Op: OpGroupBy, Field: field, Agg: &Agg{Op: AggCount}, As: "count"},
				{Op: OpSort, Field: "count", Desc: true},
			},
			Chart: &ChartSpec{Kind: kind, X: field, Y: "count", Title: title},
		}
	}

	switch c {
	case CannedFraud:
		return count(model.FieldLabelForFraud, "Fraud-labelled (1) versus normal (0) transactions", ChartPie)
	case CannedMethod:
		return count(model.FieldMethod, "Transactions by method", ChartBar)
	case CannedLocation:
		return count(model.FieldLocation, "Transactions by location", ChartBar)
	case CannedTrend:
		return &Plan{
			Summary: "Total transaction amount per day",
			Steps: []Step{
				{Op: OpGroupBy, Field: DateColumn, Agg: &Agg{Op: AggSum, Field: model.FieldAmount}, As: "total_amount"},
				{Op: OpSort, Field: DateColumn},
			},
			Chart: &ChartSpec{Kind: ChartLine, X: DateColumn, Y: "total_amount", Title: "Daily transaction amount"},
		}
	default:
		return &Plan{
			Summary: "Distribution of transaction amounts",
			Steps: []Step{
				{Op: OpSelect, Fields: []string{model.FieldTransactionID, model.FieldAmount}},
				{Op: OpSort, Field: model.FieldAmount, Desc: true},
			},
			Chart: &ChartSpec{Kind: ChartHistogram, X: model.FieldAmount, Title: "Transaction amounts"},
		}
	}
}
