package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/riskdesk/internal/model"
)

// BaseTime is the timestamp of the first fixture transaction. Each following
// transaction in a Transactions builder is one hour later.
var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// TxnBuilder constructs a single transaction fixture. Unset flags stay nil
// so tests can exercise missing-field behavior.
type TxnBuilder struct {
	txn model.Transaction
}

// Txn starts a transaction with the given id, a 100.00 USD ATM withdrawal.
func Txn(id string) *TxnBuilder {
	return &TxnBuilder{txn: model.Transaction{
		ID:       id,
		Amount:   decimal.NewFromInt(100),
		Currency: model.DefaultCurrency,
		Method:   "ATM",
		Type:     "withdrawal",
		Location: "Mumbai",
	}}
}

// Customer sets the customer id.
func (b *TxnBuilder) Customer(id string) *TxnBuilder {
	b.txn.CustomerID = id
	return b
}

// Account sets the customer account number.
func (b *TxnBuilder) Account(number string) *TxnBuilder {
	b.txn.AccountNumber = number
	return b
}

// Amount sets the transaction amount.
func (b *TxnBuilder) Amount(amount float64) *TxnBuilder {
	b.txn.Amount = decimal.NewFromFloat(amount)
	return b
}

// Method sets the method of transaction.
func (b *TxnBuilder) Method(method string) *TxnBuilder {
	b.txn.Method = method
	return b
}

// Location sets the location data.
func (b *TxnBuilder) Location(location string) *TxnBuilder {
	b.txn.Location = location
	return b
}

// At sets the timestamp.
func (b *TxnBuilder) At(ts time.Time) *TxnBuilder {
	b.txn.Timestamp = &ts
	return b
}

// AccountAge sets account_age_days.
func (b *TxnBuilder) AccountAge(days int) *TxnBuilder {
	b.txn.AccountAgeDays = &days
	return b
}

// KYC sets kyc_status.
func (b *TxnBuilder) KYC(status string) *TxnBuilder {
	b.txn.KYCStatus = &status
	return b
}

// NewBalance sets new_balance.
func (b *TxnBuilder) NewBalance(balance float64) *TxnBuilder {
	d := decimal.NewFromFloat(balance)
	b.txn.NewBalance = &d
	return b
}

// Flags sets label_for_fraud, smurfing_indicator and previous_fraud_flag.
func (b *TxnBuilder) Flags(fraud, smurfing, previousFraud int) *TxnBuilder {
	b.txn.LabelForFraud = &fraud
	b.txn.SmurfingIndicator = &smurfing
	b.txn.PreviousFraudFlag = &previousFraud
	return b
}

// Clean marks the transaction as an established, fully verified, unflagged one.
func (b *TxnBuilder) Clean() *TxnBuilder {
	return b.Flags(0, 0, 0).AccountAge(400).KYC("FULL").NewBalance(5000)
}

// Build returns the transaction.
func (b *TxnBuilder) Build() model.Transaction {
	return b.txn.Clone()
}

// Transactions builds an ordered set of fixtures for one customer.
type Transactions struct {
	customer string
	account  string
	builders []*TxnBuilder
}

// NewTransactions starts a fixture set owned by customer.
func NewTransactions(customer string) *Transactions {
	return &Transactions{customer: customer}
}

// WithAccount sets the account number stamped on every transaction.
func (s *Transactions) WithAccount(number string) *Transactions {
	s.account = number
	return s
}

// Add appends builders in order.
func (s *Transactions) Add(builders ...*TxnBuilder) *Transactions {
	s.builders = append(s.builders, builders...)
	return s
}

// Clean appends n clean transactions with ids prefix-1..prefix-n.
func (s *Transactions) Clean(prefix string, n int) *Transactions {
	for i := 1; i <= n; i++ {
		s.builders = append(s.builders, Txn(fmt.Sprintf("%s-%d", prefix, i)).Clean())
	}
	return s
}

// Build stamps ownership and timestamps and returns the transactions.
func (s *Transactions) Build() []model.Transaction {
	out := make([]model.Transaction, 0, len(s.builders))
	for i, b := range s.builders {
		txn := b.Build()
		if txn.CustomerID == "" {
			txn.CustomerID = s.customer
		}
		if txn.AccountNumber == "" {
			txn.AccountNumber = s.account
		}
		if txn.Timestamp == nil {
			ts := BaseTime.Add(time.Duration(i) * time.Hour)
			txn.Timestamp = &ts
		}
		out = append(out, txn)
	}
	return out
}
