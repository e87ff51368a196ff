package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/generator"
	"github.com/banking/compliance-sentinel/internal/pipeline"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/store"
)

// Handler exposes the compliance pipeline over HTTP.
type Handler struct {
	orch *pipeline.Orchestrator
	st   store.Store
	gen  *generator.Generator
	log  *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(orch *pipeline.Orchestrator, st store.Store, gen *generator.Generator, log *logger.Logger) *Handler {
	return &Handler{orch: orch, st: st, gen: gen, log: log.Named("api")}
}

// RegisterRoutes registers read endpoints on api and mutating compliance
// endpoints on protected (which may carry JWT middleware).
func (h *Handler) RegisterRoutes(api, protected *echo.Group) {
	api.GET("/init", h.GetInit)
	api.GET("/compliance/:code", h.GetCompliance)
	api.GET("/rules/:code", h.GetRules)
	api.POST("/ingest-batch", h.IngestBatch)
	api.GET("/drafts", h.ListDrafts)
	api.GET("/drafts/:id", h.GetDraft)

	protected.POST("/compliance/:code/push", h.PushRegulation)
	protected.POST("/drafts/:id/approve", h.ApproveDraft)
	protected.POST("/drafts/:id/reject", h.RejectDraft)
}

// UserInitEntry is one user's slice of the init payload.
type UserInitEntry struct {
	Profile          *domain.UserProfile      `json:"profile"`
	Baseline         *domain.UserBaseline     `json:"baseline"`
	CurrentRiskScore int                      `json:"current_risk_score"`
	CurrentRiskBand  domain.RiskBand          `json:"current_risk_band"`
	LatestAnalysis   *pipeline.AnalysisResult `json:"latest_analysis,omitempty"`
}

// GetInit handles GET /api/init: the full dashboard bootstrap state.
func (h *Handler) GetInit(c echo.Context) error {
	ctx := c.Request().Context()

	profiles, err := h.st.ListProfiles(ctx)
	if err != nil {
		return h.fail(c, err)
	}

	users := make([]UserInitEntry, 0, len(profiles))
	for _, p := range profiles {
		baseline, err := h.st.GetBaseline(ctx, p.UserID)
		if errors.Is(err, store.ErrNotFound) {
			baseline = domain.DefaultBaseline(p.UserID)
		} else if err != nil {
			return h.fail(c, err)
		}

		entry := UserInitEntry{
			Profile:         p,
			Baseline:        baseline,
			CurrentRiskBand: domain.BandClean,
			LatestAnalysis:  h.orch.LatestAnalysis(p.UserID),
		}
		if state, err := h.st.GetRiskState(ctx, p.UserID); err == nil {
			entry.CurrentRiskScore = state.RiskScore
			entry.CurrentRiskBand = state.RiskBand
			p.RiskProfile = state.RiskTier
		}
		users = append(users, entry)
	}

	return c.JSON(http.StatusOK, map[string]any{"users": users})
}

// complianceView adds the still-available staged regulations to the
// jurisdiction state.
type complianceView struct {
	*domain.JurisdictionCompliance
	AvailableNewRegulations []domain.Regulation `json:"available_new_regulations"`
}

// GetCompliance handles GET /api/compliance/:code.
func (h *Handler) GetCompliance(c echo.Context) error {
	ctx := c.Request().Context()
	code := strings.ToUpper(c.Param("code"))

	compliance, err := h.st.GetCompliance(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	available, err := h.st.GetAvailableRegulations(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, complianceView{
		JurisdictionCompliance:  compliance,
		AvailableNewRegulations: available,
	})
}

// GetRules handles GET /api/rules/:code.
func (h *Handler) GetRules(c echo.Context) error {
	compliance, err := h.st.GetCompliance(c.Request().Context(), strings.ToUpper(c.Param("code")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"jurisdiction":    compliance.Jurisdiction,
		"current_version": compliance.CurrentVersion,
		"rulebook":        compliance.Rulebook,
	})
}

// IngestBatchRequest shapes POST /api/ingest-batch.
type IngestBatchRequest struct {
	UserID          string            `json:"user_id"`
	NumTransactions int               `json:"num_transactions"`
	MinAmount       *float64          `json:"min_amount"`
	MaxAmount       *float64          `json:"max_amount"`
	Variance        *float64          `json:"variance"`
	Countries       []string          `json:"countries"`
	Overrides       map[string]string `json:"overrides"`

	// Transactions, when supplied, bypasses generation entirely.
	Transactions []domain.RawTransaction `json:"transactions"`
}

// IngestBatch handles POST /api/ingest-batch: generates (or accepts) a
// batch and runs it through the full analysis workflow.
func (h *Handler) IngestBatch(c echo.Context) error {
	var req IngestBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	ctx := c.Request().Context()

	transactions := req.Transactions
	if len(transactions) == 0 {
		profile, err := h.st.GetProfile(ctx, req.UserID)
		if err != nil {
			return h.fail(c, err)
		}
		transactions = h.gen.Generate(profile, generator.Options{
			NumTransactions: req.NumTransactions,
			MinAmount:       req.MinAmount,
			MaxAmount:       req.MaxAmount,
			Variance:        req.Variance,
			Countries:       req.Countries,
			CurrencyOver:    req.Overrides["transaction_currency"],
			CityOver:        req.Overrides["transaction_city"],
		})
	}

	analysis, err := h.orch.AnalyzeBatch(ctx, req.UserID, transactions)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, analysis)
}

// PushRegulationRequest shapes POST /api/compliance/:code/push.
type PushRegulationRequest struct {
	RegulationUpdateID string `json:"regulation_update_id"`
}

// PushRegulation handles POST /api/compliance/:code/push: runs the
// revision workflow and returns the resulting pending draft.
func (h *Handler) PushRegulation(c echo.Context) error {
	var req PushRegulationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RegulationUpdateID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "regulation_update_id is required"})
	}

	draft, err := h.orch.PushRegulation(c.Request().Context(), c.Param("code"), req.RegulationUpdateID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, draft)
}

// ApproveDraftRequest optionally carries a reviewer-edited rulebook.
type ApproveDraftRequest struct {
	EditedRulebook *domain.Rulebook `json:"edited_rulebook"`
}

// ApproveDraft handles POST /api/drafts/:id/approve.
func (h *Handler) ApproveDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid draft id"})
	}

	var req ApproveDraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	draft, err := h.orch.ApproveDraft(c.Request().Context(), id, req.EditedRulebook)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, draft)
}

// RejectDraft handles POST /api/drafts/:id/reject.
func (h *Handler) RejectDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid draft id"})
	}

	draft, err := h.orch.RejectDraft(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, draft)
}

// GetDraft handles GET /api/drafts/:id.
func (h *Handler) GetDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid draft id"})
	}

	draft, err := h.st.GetDraft(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, draft)
}

// ListDrafts handles GET /api/drafts?jurisdiction=MT.
func (h *Handler) ListDrafts(c echo.Context) error {
	drafts, err := h.st.ListDrafts(c.Request().Context(), strings.ToUpper(c.QueryParam("jurisdiction")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"drafts": drafts})
}

// fail translates domain errors to HTTP status codes.
func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, pipeline.ErrDraftClosed):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error("request failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
