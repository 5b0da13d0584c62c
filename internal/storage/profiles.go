package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
)

// SaveProfile upserts a KYC profile.
func (s *SQLiteStorage) SaveProfile(ctx context.Context, profile *model.KYCProfile) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("%w: profile", ErrNilParameter)
	}
	if err := validateString(profile.CustomerID, "customer_id"); err != nil {
		return err
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kyc_profiles (customer_id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(customer_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, profile.CustomerID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Profile returns the customer's KYC profile or common.ErrDataNotFound.
func (s *SQLiteStorage) Profile(ctx context.Context, customerID string) (*model.KYCProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM kyc_profiles WHERE customer_id = ?`, customerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", customerID, common.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile model.KYCProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", customerID, err)
	}
	return &profile, nil
}

// SaveAssessment records a customer-level assessment. A missing id or
// timestamp is filled in.
func (s *SQLiteStorage) SaveAssessment(ctx context.Context, a *model.Assessment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: assessment", ErrNilParameter)
	}
	if err := validateString(a.CustomerID, "customer_id"); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, customer_id, risk_score, risk_category, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.CustomerID, a.Combined.RiskScore, string(a.Combined.RiskCategory), string(data),
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

// LatestAssessment returns the most recent assessment for the customer.
func (s *SQLiteStorage) LatestAssessment(ctx context.Context, customerID string) (*model.Assessment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM assessments WHERE customer_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, customerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment for %s: %w", customerID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	var a model.Assessment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	return &a, nil
}
