package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Flat field names shared by files, caches, rules and prompts.
const (
	FieldTransactionID     = "transaction_id"
	FieldCustomerID        = "customer_id"
	FieldAccountNumber     = "customer_account_number"
	FieldAmount            = "transaction_amount"
	FieldCurrency          = "transaction_currency"
	FieldMethod            = "method_of_transaction"
	FieldType              = "transaction_type"
	FieldLocation          = "location_data"
	FieldTimestamp         = "timestamp"
	FieldOldBalance        = "old_balance"
	FieldNewBalance        = "new_balance"
	FieldAccountAgeDays    = "account_age_days"
	FieldKYCStatus         = "kyc_status"
	FieldLabelForFraud     = "label_for_fraud"
	FieldSmurfingIndicator = "smurfing_indicator"
	FieldPreviousFraudFlag = "previous_fraud_flag"
	FieldRiskScore         = "risk_score"
	FieldRiskCategory      = "risk_category"
	FieldRiskExplanation   = "risk_explanation"
	FieldRiskStatus        = "status"
)

// DefaultCurrency is assumed when a record carries no currency.
const DefaultCurrency = "USD"

// Transaction is a single bank transaction as read from the source of record.
// Optional fields are pointers so that "absent" and "zero" stay distinct.
// The Risk* fields are derived by the scoring pipeline and are never part of
// the source record.
type Transaction struct {
	Timestamp         *time.Time
	OldBalance        *decimal.Decimal
	NewBalance        *decimal.Decimal
	AccountAgeDays    *int
	LabelForFraud     *int
	SmurfingIndicator *int
	PreviousFraudFlag *int
	KYCStatus         *string
	RiskScore         *int
	Extra             map[string]any
	ID                string
	CustomerID        string
	AccountNumber     string
	Currency          string
	Method            string
	Type              string
	Location          string
	RiskCategory      string
	RiskExplanation   string
	RiskStatus        string
	Amount            decimal.Decimal
}

// Value is a field value as seen by rules and the analysis interpreter.
type Value struct {
	Str   string
	Num   float64
	IsNum bool
}

// NumberValue wraps a number.
func NumberValue(f float64) Value { return Value{Num: f, IsNum: true} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Str: s} }

// Float returns the numeric form of the value. Strings that parse as numbers
// are accepted.
func (v Value) Float() (float64, bool) {
	if v.IsNum {
		return v.Num, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders the value for grouping keys and display.
func (v Value) String() string {
	if v.IsNum {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// Field looks a value up by its flat name. Missing optional fields report false.
func (t *Transaction) Field(name string) (Value, bool) {
	switch name {
	case FieldTransactionID:
		return StringValue(t.ID), t.ID != ""
	case FieldCustomerID:
		return StringValue(t.CustomerID), t.CustomerID != ""
	case FieldAccountNumber:
		return StringValue(t.AccountNumber), t.AccountNumber != ""
	case FieldAmount:
		return NumberValue(t.Amount.InexactFloat64()), true
	case FieldCurrency:
		return StringValue(t.CurrencyOrDefault()), true
	case FieldMethod:
		return StringValue(t.Method), t.Method != ""
	case FieldType:
		return StringValue(t.Type), t.Type != ""
	case FieldLocation:
		return StringValue(t.Location), t.Location != ""
	case FieldTimestamp:
		if t.Timestamp == nil {
			return Value{}, false
		}
		return NumberValue(float64(t.Timestamp.Unix())), true
	case FieldOldBalance:
		return decimalField(t.OldBalance)
	case FieldNewBalance:
		return decimalField(t.NewBalance)
	case FieldAccountAgeDays:
		return intField(t.AccountAgeDays)
	case FieldLabelForFraud:
		return intField(t.LabelForFraud)
	case FieldSmurfingIndicator:
		return intField(t.SmurfingIndicator)
	case FieldPreviousFraudFlag:
		return intField(t.PreviousFraudFlag)
	case FieldKYCStatus:
		if t.KYCStatus == nil {
			return Value{}, false
		}
		return StringValue(*t.KYCStatus), true
	case FieldRiskScore:
		return intField(t.RiskScore)
	case FieldRiskCategory:
		return StringValue(t.RiskCategory), t.RiskCategory != ""
	case FieldRiskStatus:
		return StringValue(t.RiskStatus), t.RiskStatus != ""
	}

	raw, ok := t.Extra[name]
	if !ok || raw == nil {
		return Value{}, false
	}
	switch v := raw.(type) {
	case float64:
		return NumberValue(v), true
	case int:
		return NumberValue(float64(v)), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return NumberValue(f), true
		}
		return StringValue(v.String()), true
	case bool:
		if v {
			return NumberValue(1), true
		}
		return NumberValue(0), true
	default:
		return StringValue(fmt.Sprint(v)), true
	}
}

func decimalField(d *decimal.Decimal) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	return NumberValue(d.InexactFloat64()), true
}

func intField(i *int) (Value, bool) {
	if i == nil {
		return Value{}, false
	}
	return NumberValue(float64(*i)), true
}

// CurrencyOrDefault returns the currency, falling back to USD.
func (t *Transaction) CurrencyOrDefault() string {
	if t.Currency == "" {
		return DefaultCurrency
	}
	return t.Currency
}

// IsFraudLabelled reports whether the source flagged the transaction as fraud.
func (t *Transaction) IsFraudLabelled() bool {
	return t.LabelForFraud != nil && *t.LabelForFraud == 1
}

// IsSmurfing reports whether the smurfing indicator is set.
func (t *Transaction) IsSmurfing() bool {
	return t.SmurfingIndicator != nil && *t.SmurfingIndicator == 1
}

// HasPreviousFraud reports whether the customer carries a previous fraud flag.
func (t *Transaction) HasPreviousFraud() bool {
	return t.PreviousFraudFlag != nil && *t.PreviousFraudFlag == 1
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	c := t
	if t.Extra != nil {
		c.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = v
		}
	}
	c.Timestamp = clonePtr(t.Timestamp)
	c.OldBalance = clonePtr(t.OldBalance)
	c.NewBalance = clonePtr(t.NewBalance)
	c.AccountAgeDays = clonePtr(t.AccountAgeDays)
	c.LabelForFraud = clonePtr(t.LabelForFraud)
	c.SmurfingIndicator = clonePtr(t.SmurfingIndicator)
	c.PreviousFraudFlag = clonePtr(t.PreviousFraudFlag)
	c.KYCStatus = clonePtr(t.KYCStatus)
	c.RiskScore = clonePtr(t.RiskScore)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// WithVerdict returns a copy annotated with the verdict's derived risk fields.
func (t Transaction) WithVerdict(v Verdict) Transaction {
	c := t.Clone()
	score := v.RiskScore
	c.RiskScore = &score
	c.RiskCategory = string(v.RiskCategory)
	c.RiskExplanation = v.Explanation
	return c
}

// GenerateHash creates a stable identifier for records that arrive without one.
func (t *Transaction) GenerateHash() string {
	ts := ""
	if t.Timestamp != nil {
		ts = t.Timestamp.UTC().Format(time.RFC3339)
	}
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		ts,
		t.Amount.StringFixed(2),
		t.CustomerID,
		t.AccountNumber,
		t.Method)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:12])
}

// ToMap flattens the record to the snake_case mapping used on the wire.
func (t *Transaction) ToMap() map[string]any {
	m := make(map[string]any, len(t.Extra)+20)
	for k, v := range t.Extra {
		m[k] = v
	}
	m[FieldTransactionID] = t.ID
	putString(m, FieldCustomerID, t.CustomerID)
	putString(m, FieldAccountNumber, t.AccountNumber)
	m[FieldAmount] = json.Number(t.Amount.String())
	putString(m, FieldCurrency, t.Currency)
	putString(m, FieldMethod, t.Method)
	putString(m, FieldType, t.Type)
	putString(m, FieldLocation, t.Location)
	if t.Timestamp != nil {
		m[FieldTimestamp] = t.Timestamp.Format(time.RFC3339)
	}
	if t.OldBalance != nil {
		m[FieldOldBalance] = json.Number(t.OldBalance.String())
	}
	if t.NewBalance != nil {
		m[FieldNewBalance] = json.Number(t.NewBalance.String())
	}
	putInt(m, FieldAccountAgeDays, t.AccountAgeDays)
	putInt(m, FieldLabelForFraud, t.LabelForFraud)
	putInt(m, FieldSmurfingIndicator, t.SmurfingIndicator)
	putInt(m, FieldPreviousFraudFlag, t.PreviousFraudFlag)
	if t.KYCStatus != nil {
		m[FieldKYCStatus] = *t.KYCStatus
	}
	putInt(m, FieldRiskScore, t.RiskScore)
	putString(m, FieldRiskCategory, t.RiskCategory)
	putString(m, FieldRiskExplanation, t.RiskExplanation)
	putString(m, FieldRiskStatus, t.RiskStatus)
	return m
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func putInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

// SourceFields returns the record without derived risk fields, for prompts.
func (t *Transaction) SourceFields() map[string]any {
	m := t.ToMap()
	delete(m, FieldRiskScore)
	delete(m, FieldRiskCategory)
	delete(m, FieldRiskExplanation)
	delete(m, FieldRiskStatus)
	return m
}

// MarshalJSON writes the flat mapping.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToMap())
}

// UnmarshalJSON reads the flat mapping and validates it.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := TransactionFromMap(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TransactionFromMap builds a typed record from a loosely typed mapping such
// as a CSV row or a decoded JSON object. Numeric fields may be numbers or
// numeric strings; empty strings count as absent. A record needs an id and
// an amount, so Field always has a real amount to report.
func TransactionFromMap(raw map[string]any) (Transaction, error) {
	var t Transaction
	var err error

	hasAmount := false
	for key, val := range raw {
		if val == nil {
			continue
		}
		switch key {
		case FieldTransactionID:
			t.ID = scalarString(val)
		case FieldCustomerID:
			t.CustomerID = scalarString(val)
		case FieldAccountNumber:
			t.AccountNumber = scalarString(val)
		case FieldAmount:
			var d *decimal.Decimal
			if d, err = toDecimal(val); err != nil {
				return t, fieldErr(key, err)
			}
			if d != nil {
				t.Amount = *d
				hasAmount = true
			}
		case FieldCurrency:
			t.Currency = scalarString(val)
		case FieldMethod:
			t.Method = scalarString(val)
		case FieldType:
			t.Type = scalarString(val)
		case FieldLocation:
			t.Location = scalarString(val)
		case FieldTimestamp:
			if t.Timestamp, err = toTime(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldOldBalance:
			if t.OldBalance, err = toDecimal(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldNewBalance:
			if t.NewBalance, err = toDecimal(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldAccountAgeDays:
			if t.AccountAgeDays, err = toInt(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldLabelForFraud:
			if t.LabelForFraud, err = toInt(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldSmurfingIndicator:
			if t.SmurfingIndicator, err = toInt(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldPreviousFraudFlag:
			if t.PreviousFraudFlag, err = toInt(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldKYCStatus:
			if s := scalarString(val); s != "" {
				t.KYCStatus = &s
			}
		case FieldRiskScore:
			if t.RiskScore, err = toInt(val); err != nil {
				return t, fieldErr(key, err)
			}
		case FieldRiskCategory:
			t.RiskCategory = scalarString(val)
		case FieldRiskExplanation:
			t.RiskExplanation = scalarString(val)
		case FieldRiskStatus:
			t.RiskStatus = scalarString(val)
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]any)
			}
			t.Extra[key] = normalizeExtra(val)
		}
	}

	if t.ID == "" {
		return t, fmt.Errorf("transaction missing %s", FieldTransactionID)
	}
	if !hasAmount {
		return t, fmt.Errorf("transaction %s missing %s", t.ID, FieldAmount)
	}
	return t, nil
}

func fieldErr(key string, err error) error {
	return fmt.Errorf("invalid %s: %w", key, err)
}

func normalizeExtra(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func toDecimal(v any) (*decimal.Decimal, error) {
	s := scalarString(v)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toInt(v any) (*int, error) {
	s := scalarString(v)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	i := int(f)
	return &i, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

func toTime(v any) (*time.Time, error) {
	s := scalarString(v)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}

// FieldNames lists the flat field names present across the given records,
// sorted, for prompt schemas.
func FieldNames(txs []Transaction) []string {
	seen := make(map[string]struct{})
	for i := range txs {
		for k := range txs[i].SourceFields() {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
