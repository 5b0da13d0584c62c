// Package testutil provides test helpers shared by riskdesk packages: an
// in-memory database and fluent builders for transaction fixtures.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage      *storage.SQLiteStorage
	t            *testing.T
	Transactions []model.Transaction
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup  func(context.Context, *storage.SQLiteStorage) error
	Transactions []model.Transaction
	Profiles     []model.KYCProfile
}

// SetupTestDB creates a migrated in-memory database seeded with txs.
// It is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.NewTransactions("C1").
//		Add(testutil.Txn("t1").Amount(60000)).
//		Build())
func SetupTestDB(t *testing.T, txs []model.Transaction) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Transactions: txs})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	ctx := context.Background()
	s, err := storage.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if len(opts.Transactions) > 0 {
		if _, err := s.SaveTransactions(ctx, opts.Transactions); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}
	for i := range opts.Profiles {
		if err := s.SaveProfile(ctx, &opts.Profiles[i]); err != nil {
			t.Fatalf("failed to seed profile %q: %v", opts.Profiles[i].CustomerID, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, s); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage:      s,
		Transactions: opts.Transactions,
		t:            t,
	}
}

// MustGet returns the seeded transaction with id or fails the test.
func (db *TestDB) MustGet(id string) model.Transaction {
	db.t.Helper()
	for _, txn := range db.Transactions {
		if txn.ID == id {
			return txn
		}
	}
	db.t.Fatalf("transaction %q was not seeded", id)
	return model.Transaction{}
}
