package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banking/compliance-sentinel/internal/domain"
)

// Memory is an in-memory Store. Every write replaces a whole value under
// the lock, so concurrent pipeline runs can never observe a partial write.
type Memory struct {
	mu sync.RWMutex

	profiles   map[string]*domain.UserProfile
	baselines  map[string]*domain.UserBaseline
	riskStates map[string]*domain.RiskState
	compliance map[string]*domain.JurisdictionCompliance
	staged     map[string][]domain.Regulation
	drafts     map[uuid.UUID]*domain.ComplianceDraft
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles:   make(map[string]*domain.UserProfile),
		baselines:  make(map[string]*domain.UserBaseline),
		riskStates: make(map[string]*domain.RiskState),
		compliance: make(map[string]*domain.JurisdictionCompliance),
		staged:     make(map[string][]domain.Regulation),
		drafts:     make(map[uuid.UUID]*domain.ComplianceDraft),
	}
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListProfiles(ctx context.Context) ([]*domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.UserProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.UserID] = &cp
	return nil
}

func (m *Memory) GetBaseline(ctx context.Context, userID string) (*domain.UserBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.baselines[userID]
	if !ok {
		return nil, fmt.Errorf("baseline %s: %w", userID, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) ListBaselines(ctx context.Context) ([]*domain.UserBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.UserBaseline, 0, len(m.baselines))
	for _, b := range m.baselines {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) UpsertBaseline(ctx context.Context, baseline *domain.UserBaseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *baseline
	m.baselines[baseline.UserID] = &cp
	return nil
}

func (m *Memory) GetRiskState(ctx context.Context, userID string) (*domain.RiskState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.riskStates[userID]
	if !ok {
		return nil, fmt.Errorf("risk state %s: %w", userID, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpsertRiskState(ctx context.Context, state *domain.RiskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.riskStates[state.UserID] = &cp
	return nil
}

func (m *Memory) GetCompliance(ctx context.Context, jurisdictionCode string) (*domain.JurisdictionCompliance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.compliance[jurisdictionCode]
	if !ok {
		return nil, fmt.Errorf("jurisdiction %s: %w", jurisdictionCode, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListJurisdictions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.compliance))
	for code := range m.compliance {
		out = append(out, code)
	}
	return out, nil
}

func (m *Memory) UpsertCompliance(ctx context.Context, compliance *domain.JurisdictionCompliance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *compliance
	m.compliance[compliance.JurisdictionCode] = &cp
	return nil
}

func (m *Memory) ActivateRulebook(ctx context.Context, jurisdictionCode string, rulebook domain.Rulebook, version string, pushed domain.Regulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.compliance[jurisdictionCode]
	if !ok {
		return fmt.Errorf("jurisdiction %s: %w", jurisdictionCode, ErrNotFound)
	}
	cp := *c
	cp.Rulebook = rulebook
	cp.CurrentVersion = version
	cp.NewRegulations = append(append([]domain.Regulation{}, c.NewRegulations...), pushed)
	m.compliance[jurisdictionCode] = &cp
	return nil
}

func (m *Memory) GetAvailableRegulations(ctx context.Context, jurisdictionCode string) ([]domain.Regulation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.compliance[jurisdictionCode]
	if !ok {
		return nil, fmt.Errorf("jurisdiction %s: %w", jurisdictionCode, ErrNotFound)
	}

	pushed := make(map[string]bool, len(c.NewRegulations))
	for _, r := range c.NewRegulations {
		pushed[r.RegulationUpdateID] = true
	}

	var out []domain.Regulation
	for _, r := range m.staged[jurisdictionCode] {
		if !pushed[r.RegulationUpdateID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) StageRegulation(ctx context.Context, jurisdictionCode string, regulation domain.Regulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[jurisdictionCode] = append(m.staged[jurisdictionCode], regulation)
	return nil
}

func (m *Memory) CreateDraft(ctx context.Context, draft *domain.ComplianceDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *draft
	m.drafts[draft.ID] = &cp
	return nil
}

func (m *Memory) GetDraft(ctx context.Context, id uuid.UUID) (*domain.ComplianceDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) ListDrafts(ctx context.Context, jurisdictionCode string) ([]*domain.ComplianceDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ComplianceDraft
	for _, d := range m.drafts {
		if jurisdictionCode == "" || d.JurisdictionCode == jurisdictionCode {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateDraft(ctx context.Context, draft *domain.ComplianceDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[draft.ID]; !ok {
		return fmt.Errorf("draft %s: %w", draft.ID, ErrNotFound)
	}
	cp := *draft
	m.drafts[draft.ID] = &cp
	return nil
}
