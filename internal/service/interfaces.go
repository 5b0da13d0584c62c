// Package service defines the interfaces shared between the application's
// components.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/riskdesk/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CustomerID string
	Limit      int
	Offset     int
}

// TransactionSource returns transactions in source order.
type TransactionSource interface {
	// TransactionsForCustomer matches the customer's account number first and
	// falls back to the customer id when nothing matches.
	TransactionsForCustomer(ctx context.Context, customerID string) ([]model.Transaction, error)
	// Transactions returns a page of the full dataset.
	Transactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// CountTransactions counts the dataset matching filter, ignoring Limit and Offset.
	CountTransactions(ctx context.Context, filter TransactionFilter) (int, error)
	// CountFlagged counts the dataset's smurfing and previous-fraud flags.
	CountFlagged(ctx context.Context, filter TransactionFilter) (smurfing, previousFraud int, err error)
}

// ProfileSource returns KYC profiles.
type ProfileSource interface {
	Profile(ctx context.Context, customerID string) (*model.KYCProfile, error)
}

// AssessmentRecorder persists customer-level results.
type AssessmentRecorder interface {
	SaveAssessment(ctx context.Context, a *model.Assessment) error
	LatestAssessment(ctx context.Context, customerID string) (*model.Assessment, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionSource
	ProfileSource
	AssessmentRecorder

	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	SaveProfile(ctx context.Context, profile *model.KYCProfile) error

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
