package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/service"
)

// SaveTransactions upserts transactions by id, keeping the original load
// order. Derived risk fields are never stored. It returns how many rows were
// written.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if transactions == nil {
		return 0, fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return 0, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, customer_id, account_number, occurred_at,
			smurfing_indicator, previous_fraud_flag, label_for_fraud, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			account_number = excluded.account_number,
			occurred_at = excluded.occurred_at,
			smurfing_indicator = excluded.smurfing_indicator,
			previous_fraud_flag = excluded.previous_fraud_flag,
			label_for_fraud = excluded.label_for_fraud,
			data = excluded.data
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	written := 0
	for i := range transactions {
		txn := &transactions[i]
		data, err := json.Marshal(txn.SourceFields())
		if err != nil {
			return 0, fmt.Errorf("failed to encode transaction %s: %w", txn.ID, err)
		}

		var occurred any
		if txn.Timestamp != nil {
			occurred = txn.Timestamp.UTC().Format(time.RFC3339)
		}

		res, err := stmt.ExecContext(ctx,
			txn.ID,
			nullString(txn.CustomerID),
			nullString(txn.AccountNumber),
			occurred,
			nullInt(txn.SmurfingIndicator),
			nullInt(txn.PreviousFraudFlag),
			nullInt(txn.LabelForFraud),
			string(data),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return written, nil
}

// GetTransactionByID returns one transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM transactions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	var txn model.Transaction
	if err := json.Unmarshal([]byte(data), &txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", id, err)
	}
	return &txn, nil
}

// TransactionsForCustomer matches on account number, then on customer id.
func (s *SQLiteStorage) TransactionsForCustomer(ctx context.Context, customerID string) ([]model.Transaction, error) {
	return s.Transactions(ctx, service.TransactionFilter{CustomerID: customerID})
}

// Transactions returns transactions in load order.
func (s *SQLiteStorage) Transactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args, err := s.buildWhere(ctx, filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT data FROM transactions` + where + ` ORDER BY seq`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(0, filter.Offset))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var txn model.Transaction
		if err := json.Unmarshal([]byte(data), &txn); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// CountTransactions counts matching transactions.
func (s *SQLiteStorage) CountTransactions(ctx context.Context, filter service.TransactionFilter) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	where, args, err := s.buildWhere(ctx, filter)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// CountFlagged counts smurfing indicators and previous fraud flags.
func (s *SQLiteStorage) CountFlagged(ctx context.Context, filter service.TransactionFilter) (int, int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	where, args, err := s.buildWhere(ctx, filter)
	if err != nil {
		return 0, 0, err
	}

	var smurfing, previous int
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN smurfing_indicator = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN previous_fraud_flag = 1 THEN 1 ELSE 0 END), 0)
		FROM transactions`+where, args...).Scan(&smurfing, &previous)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count flagged transactions: %w", err)
	}
	return smurfing, previous, nil
}

func (s *SQLiteStorage) buildWhere(ctx context.Context, filter service.TransactionFilter) (string, []any, error) {
	var clauses []string
	var args []any

	if filter.CustomerID != "" {
		column, err := s.customerColumn(ctx, filter.CustomerID)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return "", nil, fmt.Errorf("%w: %v after %v", ErrInvalidDateRange, filter.StartDate, filter.EndDate)
	}
	if filter.StartDate != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, filter.StartDate.UTC().Format(time.RFC3339))
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, filter.EndDate.UTC().Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// customerColumn picks account_number when any row matches it, otherwise customer_id.
func (s *SQLiteStorage) customerColumn(ctx context.Context, id string) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE account_number = ?)`, id).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to resolve customer: %w", err)
	}
	if exists == 1 {
		return "account_number", nil
	}
	return "customer_id", nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
