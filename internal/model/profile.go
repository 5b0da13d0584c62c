package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// KYCProfile holds onboarding and document-derived fields for a customer.
type KYCProfile struct {
	OnboardedAt     time.Time       `json:"onboarded_at"`
	CustomerID      string          `json:"customer_id"`
	FullName        string          `json:"full_name"`
	Occupation      string          `json:"occupation"`
	Country         string          `json:"country"`
	IDDocumentType  string          `json:"id_document_type"`
	KYCStatus       string          `json:"kyc_status"`
	AnnualIncome    decimal.Decimal `json:"annual_income"`
	IDVerified      bool            `json:"id_verified"`
	AddressVerified bool            `json:"address_verified"`
	PEP             bool            `json:"pep"`
	SanctionsHit    bool            `json:"sanctions_hit"`
}

// Assessment is a persisted customer-level result. Degraded lists the
// components that returned a fallback, as "component:kind".
type Assessment struct {
	CreatedAt         time.Time          `json:"created_at"`
	ID                string             `json:"id"`
	CustomerID        string             `json:"customer_id"`
	Degraded          []string           `json:"degraded,omitempty"`
	Combined          CombinedVerdict    `json:"combined"`
	Profile           Verdict            `json:"profile"`
	Latest            Verdict            `json:"latest_transaction"`
	Summary           TransactionSummary `json:"summary"`
	TotalTransactions int                `json:"total_transactions"`
	RiskyTransactions int                `json:"risky_transactions"`
	RuleUpdated       bool               `json:"rule_updated"`
}
