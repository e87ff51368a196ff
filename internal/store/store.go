// Package store defines the persistence interfaces the pipeline depends
// on. The core logic never assumes a particular storage technology; an
// in-memory implementation backs tests and demos, a PostgreSQL one backs
// production.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/banking/compliance-sentinel/internal/domain"
)

// ErrNotFound is returned for unknown users, jurisdictions, regulations,
// and drafts. It is a legitimate caller-visible rejection, never retried.
var ErrNotFound = errors.New("not found")

// ProfileStore provides access to user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	ListProfiles(ctx context.Context) ([]*domain.UserProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.UserProfile) error
}

// BaselineStore provides access to user baselines. Upsert is a single
// atomic replace.
type BaselineStore interface {
	GetBaseline(ctx context.Context, userID string) (*domain.UserBaseline, error)
	ListBaselines(ctx context.Context) ([]*domain.UserBaseline, error)
	UpsertBaseline(ctx context.Context, baseline *domain.UserBaseline) error
}

// RiskStateStore provides access to per-user risk state snapshots.
type RiskStateStore interface {
	GetRiskState(ctx context.Context, userID string) (*domain.RiskState, error)
	UpsertRiskState(ctx context.Context, state *domain.RiskState) error
}

// ComplianceStore provides access to jurisdiction compliance state. The
// active rulebook is read by many ingestion runs concurrently and is only
// ever replaced atomically through ActivateRulebook.
type ComplianceStore interface {
	GetCompliance(ctx context.Context, jurisdictionCode string) (*domain.JurisdictionCompliance, error)
	ListJurisdictions(ctx context.Context) ([]string, error)
	UpsertCompliance(ctx context.Context, compliance *domain.JurisdictionCompliance) error

	// ActivateRulebook atomically swaps the active rulebook, records the
	// pushed regulation, and bumps the version.
	ActivateRulebook(ctx context.Context, jurisdictionCode string, rulebook domain.Rulebook, version string, pushed domain.Regulation) error

	// GetAvailableRegulations returns regulations staged for the
	// jurisdiction that have not been pushed yet.
	GetAvailableRegulations(ctx context.Context, jurisdictionCode string) ([]domain.Regulation, error)
	StageRegulation(ctx context.Context, jurisdictionCode string, regulation domain.Regulation) error
}

// DraftStore provides access to compliance drafts.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *domain.ComplianceDraft) error
	GetDraft(ctx context.Context, id uuid.UUID) (*domain.ComplianceDraft, error)
	ListDrafts(ctx context.Context, jurisdictionCode string) ([]*domain.ComplianceDraft, error)
	UpdateDraft(ctx context.Context, draft *domain.ComplianceDraft) error
}

// Store bundles all persistence interfaces the orchestrator needs.
type Store interface {
	ProfileStore
	BaselineStore
	RiskStateStore
	ComplianceStore
	DraftStore
}
