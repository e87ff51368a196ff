// Package postgres implements the store interfaces on PostgreSQL via pgx.
// Structured documents (rulebooks, drafts, traces) are stored as JSONB;
// every upsert is a single ON CONFLICT statement, so a row is always
// replaced atomically.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/compliance-sentinel/internal/config"
	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/store"
)

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store from configuration.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	const query = `
		SELECT user_id, full_name, age, country, occupation, income_level,
		       kyc_status, risk_profile, historical_countries
		FROM user_profiles WHERE user_id = $1
	`
	var p domain.UserProfile
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.FullName, &p.Age, &p.Country, &p.Occupation,
		&p.IncomeLevel, &p.KYCStatus, &p.RiskProfile, &p.HistoricalCountries,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]*domain.UserProfile, error) {
	const query = `
		SELECT user_id, full_name, age, country, occupation, income_level,
		       kyc_status, risk_profile, historical_countries
		FROM user_profiles ORDER BY user_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*domain.UserProfile
	for rows.Next() {
		var p domain.UserProfile
		if err := rows.Scan(
			&p.UserID, &p.FullName, &p.Age, &p.Country, &p.Occupation,
			&p.IncomeLevel, &p.KYCStatus, &p.RiskProfile, &p.HistoricalCountries,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	const query = `
		INSERT INTO user_profiles (
			user_id, full_name, age, country, occupation, income_level,
			kyc_status, risk_profile, historical_countries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			age = EXCLUDED.age,
			country = EXCLUDED.country,
			occupation = EXCLUDED.occupation,
			income_level = EXCLUDED.income_level,
			kyc_status = EXCLUDED.kyc_status,
			risk_profile = EXCLUDED.risk_profile,
			historical_countries = EXCLUDED.historical_countries
	`
	_, err := s.pool.Exec(ctx, query,
		profile.UserID, profile.FullName, profile.Age, profile.Country,
		profile.Occupation, profile.IncomeLevel, profile.KYCStatus,
		profile.RiskProfile, profile.HistoricalCountries,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *Store) GetBaseline(ctx context.Context, userID string) (*domain.UserBaseline, error) {
	const query = `SELECT doc FROM user_baselines WHERE user_id = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("baseline %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	var b domain.UserBaseline
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	return &b, nil
}

func (s *Store) ListBaselines(ctx context.Context) ([]*domain.UserBaseline, error) {
	const query = `SELECT doc FROM user_baselines ORDER BY user_id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	defer rows.Close()

	var out []*domain.UserBaseline
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		var b domain.UserBaseline
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, fmt.Errorf("failed to decode baseline: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *Store) UpsertBaseline(ctx context.Context, baseline *domain.UserBaseline) error {
	doc, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	const query = `
		INSERT INTO user_baselines (user_id, doc) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := s.pool.Exec(ctx, query, baseline.UserID, doc); err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

func (s *Store) GetRiskState(ctx context.Context, userID string) (*domain.RiskState, error) {
	const query = `SELECT user_id, risk_score, risk_band, risk_tier FROM risk_states WHERE user_id = $1`
	var st domain.RiskState
	err := s.pool.QueryRow(ctx, query, userID).Scan(&st.UserID, &st.RiskScore, &st.RiskBand, &st.RiskTier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("risk state %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk state: %w", err)
	}
	return &st, nil
}

func (s *Store) UpsertRiskState(ctx context.Context, state *domain.RiskState) error {
	const query = `
		INSERT INTO risk_states (user_id, risk_score, risk_band, risk_tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			risk_band = EXCLUDED.risk_band,
			risk_tier = EXCLUDED.risk_tier
	`
	if _, err := s.pool.Exec(ctx, query, state.UserID, state.RiskScore, state.RiskBand, state.RiskTier); err != nil {
		return fmt.Errorf("failed to upsert risk state: %w", err)
	}
	return nil
}

func (s *Store) GetCompliance(ctx context.Context, jurisdictionCode string) (*domain.JurisdictionCompliance, error) {
	const query = `SELECT doc FROM jurisdiction_compliance WHERE jurisdiction_code = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, jurisdictionCode).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("jurisdiction %s: %w", jurisdictionCode, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance: %w", err)
	}
	var c domain.JurisdictionCompliance
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("failed to decode compliance: %w", err)
	}
	return &c, nil
}

func (s *Store) ListJurisdictions(ctx context.Context) ([]string, error) {
	const query = `SELECT jurisdiction_code FROM jurisdiction_compliance ORDER BY jurisdiction_code`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jurisdictions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan jurisdiction: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCompliance(ctx context.Context, compliance *domain.JurisdictionCompliance) error {
	doc, err := json.Marshal(compliance)
	if err != nil {
		return fmt.Errorf("failed to encode compliance: %w", err)
	}
	const query = `
		INSERT INTO jurisdiction_compliance (jurisdiction_code, doc) VALUES ($1, $2)
		ON CONFLICT (jurisdiction_code) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := s.pool.Exec(ctx, query, compliance.JurisdictionCode, doc); err != nil {
		return fmt.Errorf("failed to upsert compliance: %w", err)
	}
	return nil
}

// ActivateRulebook swaps the active rulebook inside a transaction so
// concurrent readers only ever see the old or the new document.
func (s *Store) ActivateRulebook(ctx context.Context, jurisdictionCode string, rulebook domain.Rulebook, version string, pushed domain.Regulation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectQuery = `SELECT doc FROM jurisdiction_compliance WHERE jurisdiction_code = $1 FOR UPDATE`
	var doc []byte
	if err := tx.QueryRow(ctx, selectQuery, jurisdictionCode).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("jurisdiction %s: %w", jurisdictionCode, store.ErrNotFound)
		}
		return fmt.Errorf("failed to lock compliance row: %w", err)
	}

	var c domain.JurisdictionCompliance
	if err := json.Unmarshal(doc, &c); err != nil {
		return fmt.Errorf("failed to decode compliance: %w", err)
	}

	c.Rulebook = rulebook
	c.CurrentVersion = version
	c.NewRegulations = append(c.NewRegulations, pushed)

	updated, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to encode compliance: %w", err)
	}

	const updateQuery = `UPDATE jurisdiction_compliance SET doc = $2 WHERE jurisdiction_code = $1`
	if _, err := tx.Exec(ctx, updateQuery, jurisdictionCode, updated); err != nil {
		return fmt.Errorf("failed to update compliance: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetAvailableRegulations(ctx context.Context, jurisdictionCode string) ([]domain.Regulation, error) {
	c, err := s.GetCompliance(ctx, jurisdictionCode)
	if err != nil {
		return nil, err
	}

	pushed := make(map[string]bool, len(c.NewRegulations))
	for _, r := range c.NewRegulations {
		pushed[r.RegulationUpdateID] = true
	}

	const query = `SELECT doc FROM staged_regulations WHERE jurisdiction_code = $1 ORDER BY regulation_id`
	rows, err := s.pool.Query(ctx, query, jurisdictionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged regulations: %w", err)
	}
	defer rows.Close()

	var out []domain.Regulation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan regulation: %w", err)
		}
		var r domain.Regulation
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("failed to decode regulation: %w", err)
		}
		if !pushed[r.RegulationUpdateID] {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func (s *Store) StageRegulation(ctx context.Context, jurisdictionCode string, regulation domain.Regulation) error {
	doc, err := json.Marshal(regulation)
	if err != nil {
		return fmt.Errorf("failed to encode regulation: %w", err)
	}
	const query = `
		INSERT INTO staged_regulations (jurisdiction_code, regulation_id, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (jurisdiction_code, regulation_id) DO UPDATE SET doc = EXCLUDED.doc
	`
	if _, err := s.pool.Exec(ctx, query, jurisdictionCode, regulation.RegulationUpdateID, doc); err != nil {
		return fmt.Errorf("failed to stage regulation: %w", err)
	}
	return nil
}

func (s *Store) CreateDraft(ctx context.Context, draft *domain.ComplianceDraft) error {
	doc, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	const query = `
		INSERT INTO compliance_drafts (id, jurisdiction_code, status, doc)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, draft.ID, draft.JurisdictionCode, draft.Status, doc); err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id uuid.UUID) (*domain.ComplianceDraft, error) {
	const query = `SELECT doc FROM compliance_drafts WHERE id = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	var d domain.ComplianceDraft
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &d, nil
}

func (s *Store) ListDrafts(ctx context.Context, jurisdictionCode string) ([]*domain.ComplianceDraft, error) {
	query := `SELECT doc FROM compliance_drafts`
	args := []interface{}{}
	if jurisdictionCode != "" {
		query += ` WHERE jurisdiction_code = $1`
		args = append(args, jurisdictionCode)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []*domain.ComplianceDraft
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		var d domain.ComplianceDraft
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("failed to decode draft: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDraft(ctx context.Context, draft *domain.ComplianceDraft) error {
	doc, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	const query = `UPDATE compliance_drafts SET status = $2, doc = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, draft.ID, draft.Status, doc)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %s: %w", draft.ID, store.ErrNotFound)
	}
	return nil
}
