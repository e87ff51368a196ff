package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/events"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/rulebook"
	"github.com/banking/compliance-sentinel/internal/screening"
	"github.com/banking/compliance-sentinel/internal/store"
)

// ErrDraftClosed is returned when approving or rejecting a draft that has
// already been resolved.
var ErrDraftClosed = errors.New("draft already resolved")

// AnalysisResult is the complete outcome of one ingestion run.
type AnalysisResult struct {
	RunID               uuid.UUID                      `json:"run_id"`
	UserID              string                         `json:"user_id"`
	UserName            string                         `json:"user_name"`
	Jurisdiction        string                         `json:"jurisdiction"`
	RiskScore           int                            `json:"risk_score"`
	RiskBand            domain.RiskBand                `json:"risk_band"`
	RiskProfile         domain.RiskTier                `json:"risk_profile"`
	Reasoning           string                         `json:"reasoning"`
	Flags               []string                       `json:"flags"`
	RegulationsViolated []string                       `json:"regulations_violated"`
	ValidationRounds    int                            `json:"validation_rounds"`
	ScreeningHits       []screening.Hit                `json:"screening_hits,omitempty"`
	AgentChain          []domain.AgentStep             `json:"agent_chain"`
	Preprocessed        *domain.PreprocessedTransaction `json:"preprocessed,omitempty"`
	Baseline            *domain.UserBaseline           `json:"baseline"`
	Transactions        []domain.RawTransaction        `json:"generated_transactions"`
	Timestamp           time.Time                      `json:"timestamp"`
}

// Orchestrator coordinates the two workflows: batch anomaly analysis and
// rulebook revision. It owns no business rules of its own; stages do the
// work and the orchestrator sequences them, records the trace, and
// persists outcomes.
type Orchestrator struct {
	store     store.Store
	enricher  *Enricher
	screener  *screening.Screener
	baseline  *BaselineStage
	scorer    *Scorer
	validator *Validator
	reviser   *rulebook.Reviser
	guard     *rulebook.Enforcer
	publisher *events.Publisher
	tracer    trace.Tracer
	log       *logger.Logger

	// Latest analysis per user, in memory only. Resets on restart.
	mu     sync.RWMutex
	latest map[string]*AnalysisResult
}

// NewOrchestrator wires the pipeline together. publisher may be nil when
// event publishing is disabled.
func NewOrchestrator(
	st store.Store,
	enricher *Enricher,
	screener *screening.Screener,
	baseline *BaselineStage,
	scorer *Scorer,
	validator *Validator,
	reviser *rulebook.Reviser,
	guard *rulebook.Enforcer,
	publisher *events.Publisher,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     st,
		enricher:  enricher,
		screener:  screener,
		baseline:  baseline,
		scorer:    scorer,
		validator: validator,
		reviser:   reviser,
		guard:     guard,
		publisher: publisher,
		tracer:    otel.Tracer("pipeline"),
		log:       log.Named("orchestrator"),
		latest:    make(map[string]*AnalysisResult),
	}
}

// AnalyzeBatch runs the full anomaly workflow for one user's transaction
// batch: enrichment and baseline in parallel, then scoring, then the
// validation loop, then persistence of the new risk state.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, userID string, transactions []domain.RawTransaction) (*AnalysisResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.AnalyzeBatch",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("batch_size", len(transactions)),
		))
	defer span.End()

	runTrace := domain.NewTrace()
	log := o.log.WithRun(runTrace.RunID.String(), userID)

	profile, err := o.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	compliance, err := o.store.GetCompliance(ctx, profile.Country)
	if err != nil {
		return nil, fmt.Errorf("load compliance %s: %w", profile.Country, err)
	}
	jurisdiction := domain.JurisdictionName(profile.Country)

	runTrace.Record("profile", domain.StepSuccess,
		fmt.Sprintf("Loaded profile %s (%s) — jurisdiction %s", profile.UserID, profile.FullName, jurisdiction),
		time.Now())

	// Enrichment and baseline computation are independent: one derives
	// per-transaction features, the other aggregates batch statistics.
	var (
		preprocessed     []domain.PreprocessedTransaction
		baseline         *domain.UserBaseline
		baselineFallback bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		preprocessed = o.enricher.Enrich(profile, transactions)
		runTrace.Record("enricher", domain.StepSuccess,
			fmt.Sprintf("Enriched %d transactions with geo and velocity features", len(preprocessed)),
			start)
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		baseline, baselineFallback, err = o.baseline.Compute(gctx, profile, transactions)
		if err != nil {
			return err
		}
		runTrace.Append(domain.AgentStep{
			Stage:      "baseline",
			Status:     domain.StepSuccess,
			Message:    fmt.Sprintf("Baseline updated — avg tx $%.2f, avg daily $%.2f", baseline.AvgTxAmountUSD, baseline.AvgDailyTotalUSD),
			DurationMs: time.Since(start).Milliseconds(),
			Fallback:   baselineFallback,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	screenStart := time.Now()
	hits := o.screener.Screen(preprocessed)
	screenStatus := domain.StepSuccess
	screenMsg := "No watchlist countries in batch"
	if len(hits) > 0 {
		screenStatus = domain.StepAlert
		screenMsg = fmt.Sprintf("%d watchlist country hit(s) in batch", len(hits))
	}
	runTrace.Record("screening", screenStatus, screenMsg, screenStart)

	scoreStart := time.Now()
	result, scoreFallback, err := o.scorer.Score(ctx, preprocessed, baseline, profile, compliance, hits)
	if err != nil {
		return nil, err
	}
	runTrace.Append(domain.AgentStep{
		Stage:      "scorer",
		Status:     scoreStatus(result),
		Message:    scoreMessage(result),
		DurationMs: time.Since(scoreStart).Milliseconds(),
		Fallback:   scoreFallback,
	})

	validateStart := time.Now()
	result, rounds := o.validator.Validate(ctx, result, preprocessed, baseline, profile)
	validatorStatus := domain.StepSuccess
	validatorMsg := "Validated & Complete — output consistent"
	if rounds > 0 {
		validatorStatus = domain.StepAlert
		validatorMsg = fmt.Sprintf("Analysis refined %d time(s) by internal validation for regulatory accuracy", rounds)
	}
	runTrace.Record("validator", validatorStatus, validatorMsg, validateStart)

	riskTier := domain.TierForScore(result.RiskScore)
	state := &domain.RiskState{
		UserID:    userID,
		RiskScore: result.RiskScore,
		RiskBand:  result.RiskBand,
		RiskTier:  riskTier,
	}
	if err := o.store.UpsertRiskState(ctx, state); err != nil {
		return nil, fmt.Errorf("persist risk state: %w", err)
	}

	if result.IsAnomaly {
		log.AnomalyDetected(userID, result.RiskScore, string(result.RiskBand), len(result.Flags))
	}

	var lastPreprocessed *domain.PreprocessedTransaction
	if len(preprocessed) > 0 {
		lastPreprocessed = &preprocessed[len(preprocessed)-1]
	}

	analysis := &AnalysisResult{
		RunID:               runTrace.RunID,
		UserID:              userID,
		UserName:            profile.FullName,
		Jurisdiction:        jurisdiction,
		RiskScore:           result.RiskScore,
		RiskBand:            result.RiskBand,
		RiskProfile:         riskTier,
		Reasoning:           result.Reasoning,
		Flags:               result.Flags,
		RegulationsViolated: result.RegulationsViolated,
		ValidationRounds:    rounds,
		ScreeningHits:       hits,
		AgentChain:          runTrace.Snapshot(),
		Preprocessed:        lastPreprocessed,
		Baseline:            baseline,
		Transactions:        transactions,
		Timestamp:           time.Now().UTC(),
	}

	o.mu.Lock()
	o.latest[userID] = analysis
	o.mu.Unlock()

	o.publisher.PublishAnalysisCompleted(runTrace.RunID, userID, result)

	span.SetAttributes(
		attribute.Int("risk_score", result.RiskScore),
		attribute.String("risk_band", string(result.RiskBand)),
	)
	return analysis, nil
}

// LatestAnalysis returns the most recent analysis for the user, or nil.
func (o *Orchestrator) LatestAnalysis(userID string) *AnalysisResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest[userID]
}

// PushRegulation runs the rulebook revision workflow for a staged
// regulation and records the outcome as a pending draft. Nothing becomes
// active until the draft is explicitly approved.
func (o *Orchestrator) PushRegulation(ctx context.Context, jurisdictionCode, regulationUpdateID string) (*domain.ComplianceDraft, error) {
	code := strings.ToUpper(jurisdictionCode)

	ctx, span := o.tracer.Start(ctx, "pipeline.PushRegulation",
		trace.WithAttributes(
			attribute.String("jurisdiction", code),
			attribute.String("regulation_id", regulationUpdateID),
		))
	defer span.End()

	runTrace := domain.NewTrace()
	log := o.log.WithJurisdiction(code)

	compliance, err := o.store.GetCompliance(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load compliance %s: %w", code, err)
	}

	available, err := o.store.GetAvailableRegulations(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load staged regulations: %w", err)
	}
	var regulation *domain.Regulation
	for i := range available {
		if available[i].RegulationUpdateID == regulationUpdateID {
			regulation = &available[i]
			break
		}
	}
	if regulation == nil {
		return nil, fmt.Errorf("regulation %s: %w", regulationUpdateID, store.ErrNotFound)
	}

	jurisdiction := compliance.Jurisdiction
	newVersion := compliance.NextVersion()

	start := time.Now()
	summary, fb := o.reviser.Summarize(ctx, regulation)
	runTrace.Append(domain.AgentStep{
		Stage:      "summarizer",
		Status:     domain.StepSuccess,
		Message:    fmt.Sprintf("Summarized %s: %s", regulation.RegulationUpdateID, regulation.UpdateTitle),
		DurationMs: time.Since(start).Milliseconds(),
		Fallback:   fb,
	})

	start = time.Now()
	comparisonPoints, fb := o.reviser.Compare(ctx, compliance.OldRegulations, regulation, jurisdiction)
	runTrace.Append(domain.AgentStep{
		Stage:      "comparison",
		Status:     domain.StepSuccess,
		Message:    fmt.Sprintf("Generated %d comparison points against existing framework", len(comparisonPoints)),
		DurationMs: time.Since(start).Milliseconds(),
		Fallback:   fb,
	})

	users, baselines, err := o.jurisdictionUsers(ctx, code)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	impactAnalysis, fb := o.reviser.Analyze(ctx, compliance.OldRegulations, regulation, jurisdiction, users, baselines)
	runTrace.Append(domain.AgentStep{
		Stage:      "analyzer",
		Status:     domain.StepAlert,
		Message:    fmt.Sprintf("Impact analysis complete — %d %s users assessed", len(users), jurisdiction),
		DurationMs: time.Since(start).Milliseconds(),
		Fallback:   fb,
	})

	start = time.Now()
	candidate, changesDescription, fb := o.reviser.Edit(ctx, impactAnalysis, &compliance.Rulebook, jurisdiction)
	runTrace.Append(domain.AgentStep{
		Stage:      "editor",
		Status:     domain.StepComplete,
		Message:    truncate(fmt.Sprintf("Rulebook revision drafted. %s", changesDescription), 120),
		DurationMs: time.Since(start).Milliseconds(),
		Fallback:   fb,
	})

	start = time.Now()
	repaired, issues := o.guard.Apply(candidate, code, &compliance.Rulebook)
	if len(issues) > 0 {
		log.GuardrailTriggered(code, issues)
		runTrace.Record("guardrail", domain.StepAlert,
			fmt.Sprintf("Guardrail intervened — %d issue(s)", len(issues)), start)
	} else {
		runTrace.Record("guardrail", domain.StepSuccess, "Guardrail passed clean", start)
	}

	proposed, err := rulebook.FromDocument(repaired)
	if err != nil {
		return nil, fmt.Errorf("decode proposed rulebook: %w", err)
	}

	draft := &domain.ComplianceDraft{
		ID:                uuid.New(),
		JurisdictionCode:  code,
		RegulationID:      regulation.RegulationUpdateID,
		ProposedVersion:   newVersion,
		Status:            domain.DraftPending,
		ProposedRulebook:  *proposed,
		PreviousRulebook:  compliance.Rulebook,
		Summary:           summary,
		ComparisonPoints:  comparisonPoints,
		ImpactAnalysis:    impactAnalysis,
		ChangeDescription: changesDescription,
		GuardrailIssues:   issues,
		Trace:             runTrace.Snapshot(),
		CreatedAt:         time.Now().UTC(),
	}

	if err := o.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	log.DraftCreated(draft.ID.String(), code, newVersion)
	o.publisher.PublishDraftLifecycle(draft)
	return draft, nil
}

// ApproveDraft activates a pending draft's rulebook. An edited rulebook,
// when supplied, replaces the proposed one after another guardrail pass
// against the draft's previous rulebook.
func (o *Orchestrator) ApproveDraft(ctx context.Context, draftID uuid.UUID, edited *domain.Rulebook) (*domain.ComplianceDraft, error) {
	draft, err := o.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.IsOpen() {
		return nil, fmt.Errorf("draft %s: %w", draftID, ErrDraftClosed)
	}

	toActivate := draft.ProposedRulebook
	if edited != nil {
		doc, err := rulebook.ToDocument(edited)
		if err != nil {
			return nil, fmt.Errorf("encode edited rulebook: %w", err)
		}
		repaired, issues := o.guard.Apply(doc, draft.JurisdictionCode, &draft.PreviousRulebook)
		if len(issues) > 0 {
			o.log.GuardrailTriggered(draft.JurisdictionCode, issues)
			draft.GuardrailIssues = append(draft.GuardrailIssues, issues...)
		}
		fixed, err := rulebook.FromDocument(repaired)
		if err != nil {
			return nil, fmt.Errorf("decode edited rulebook: %w", err)
		}
		toActivate = *fixed
		draft.ProposedRulebook = *fixed
	}

	pushed := domain.Regulation{RegulationUpdateID: draft.RegulationID}
	if available, err := o.store.GetAvailableRegulations(ctx, draft.JurisdictionCode); err == nil {
		for i := range available {
			if available[i].RegulationUpdateID == draft.RegulationID {
				pushed = available[i]
				break
			}
		}
	}

	if err := o.store.ActivateRulebook(ctx, draft.JurisdictionCode, toActivate, draft.ProposedVersion, pushed); err != nil {
		return nil, fmt.Errorf("activate rulebook: %w", err)
	}

	now := time.Now().UTC()
	draft.Status = domain.DraftApproved
	draft.ResolvedAt = &now
	if err := o.store.UpdateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("update draft: %w", err)
	}

	o.log.RulebookActivated(draft.JurisdictionCode, draft.ProposedVersion)
	o.log.DraftResolved(draft.ID.String(), string(draft.Status))
	o.publisher.PublishDraftLifecycle(draft)
	return draft, nil
}

// RejectDraft closes a pending draft without activating anything.
func (o *Orchestrator) RejectDraft(ctx context.Context, draftID uuid.UUID) (*domain.ComplianceDraft, error) {
	draft, err := o.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.IsOpen() {
		return nil, fmt.Errorf("draft %s: %w", draftID, ErrDraftClosed)
	}

	now := time.Now().UTC()
	draft.Status = domain.DraftRejected
	draft.ResolvedAt = &now
	if err := o.store.UpdateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("update draft: %w", err)
	}

	o.log.DraftResolved(draft.ID.String(), string(draft.Status))
	o.publisher.PublishDraftLifecycle(draft)
	return draft, nil
}

func (o *Orchestrator) jurisdictionUsers(ctx context.Context, code string) ([]*domain.UserProfile, map[string]*domain.UserBaseline, error) {
	profiles, err := o.store.ListProfiles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list profiles: %w", err)
	}

	var users []*domain.UserProfile
	baselines := make(map[string]*domain.UserBaseline)
	for _, p := range profiles {
		if p.Country != code {
			continue
		}
		users = append(users, p)
		if b, err := o.store.GetBaseline(ctx, p.UserID); err == nil {
			baselines[p.UserID] = b
		}
	}
	return users, baselines, nil
}

func scoreStatus(result *domain.AnomalyResult) domain.StepStatus {
	switch result.RiskBand {
	case domain.BandHigh:
		return domain.StepHigh
	case domain.BandMedium, domain.BandLow:
		return domain.StepAlert
	default:
		return domain.StepSuccess
	}
}

func scoreMessage(result *domain.AnomalyResult) string {
	verdict := "No anomaly"
	if result.IsAnomaly {
		verdict = "ANOMALY DETECTED"
	}
	return fmt.Sprintf("%s — Risk: %d/100 %s | %d flags | %d regulations violated",
		verdict, result.RiskScore, result.RiskBand, len(result.Flags), len(result.RegulationsViolated))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
