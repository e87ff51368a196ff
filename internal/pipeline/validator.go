package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/judgment"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// Validator cross-examines an anomaly result for logical consistency and
// applies the corrections the judgment capability suggests. It never adds
// findings of its own; only supplied corrections are applied, the band is
// always re-derived from the final score, and any capability failure keeps
// the last good result.
type Validator struct {
	client   judgment.Client
	retries  int
	maxLoops int
	log      *logger.Logger
}

// NewValidator creates the validation stage.
func NewValidator(client judgment.Client, schemaRetries, maxLoops int, log *logger.Logger) *Validator {
	return &Validator{
		client:   client,
		retries:  schemaRetries,
		maxLoops: maxLoops,
		log:      log.Named("validator"),
	}
}

type validatorCorrections struct {
	RiskScore *int    `json:"risk_score"`
	RiskBand  *string `json:"risk_band"`
	Reasoning *string `json:"reasoning"`
}

type validatorResponse struct {
	IsValid              bool                 `json:"is_valid"`
	Issues               []string             `json:"issues"`
	SuggestedCorrections validatorCorrections `json:"suggested_corrections"`
	ValidationSummary    string               `json:"validation_summary"`
}

// Validate returns the (possibly corrected) result and the number of
// rounds that mutated it.
func (v *Validator) Validate(ctx context.Context, result *domain.AnomalyResult, preprocessed []domain.PreprocessedTransaction, baseline *domain.UserBaseline, profile *domain.UserProfile) (*domain.AnomalyResult, int) {
	current := *result
	loopCount := 0

	// Deterministic pre-pass: a band inconsistent with the score is fixed
	// before the capability ever sees the result.
	if expected := domain.BandForScore(current.RiskScore); current.RiskBand != expected {
		current.RiskBand = expected
		current.IsAnomaly = current.RiskScore >= 25
	}

	for i := 0; i < v.maxLoops; i++ {
		resp, err := v.review(ctx, &current, preprocessed, baseline, profile)
		if err != nil {
			v.log.CapabilityFallback("validator", err)
			break
		}

		if resp.IsValid || len(resp.Issues) == 0 {
			break
		}

		loopCount++
		c := resp.SuggestedCorrections
		if c.RiskScore != nil {
			current.RiskScore = domain.ClampScore(*c.RiskScore)
		}
		if c.RiskBand != nil && domain.IsValidBand(*c.RiskBand) {
			current.RiskBand = domain.RiskBand(*c.RiskBand)
		}
		if c.Reasoning != nil && *c.Reasoning != "" {
			current.Reasoning = *c.Reasoning
		}
		current.Normalize()
	}

	if loopCount > 0 {
		v.log.ValidationCorrected(profile.UserID, loopCount)
	}
	return &current, loopCount
}

func (v *Validator) review(ctx context.Context, current *domain.AnomalyResult, preprocessed []domain.PreprocessedTransaction, baseline *domain.UserBaseline, profile *domain.UserProfile) (*validatorResponse, error) {
	systemInstruction := "You are a senior compliance quality-control analyst. " +
		"Your job is to validate the output of the anomaly detection stage. " +
		"Return ONLY valid JSON."

	var txSummary strings.Builder
	limit := len(preprocessed)
	if limit > 5 {
		limit = 5
	}
	for _, ptx := range preprocessed[:limit] {
		fmt.Fprintf(&txSummary, "  Amount: $%.2f, Country: %s, Distance: %.0fkm, New: %t\n",
			ptx.TransactionAmount, ptx.TransactionCountry, ptx.DistanceKM, ptx.IsNewCountry)
	}

	flagsJSON, _ := json.Marshal(current.Flags)
	regsJSON, _ := json.Marshal(current.RegulationsViolated)

	prompt := fmt.Sprintf(`Review the anomaly detection output for logical consistency.

## Detection Output
- is_anomaly: %t
- risk_score: %d
- risk_band: %s
- flags: %s
- reasoning: %s
- regulations_violated: %s

## Context
User: %s (%s), %s
Baseline avg tx: $%.2f, avg daily: $%.2f
Transactions summary:
%s
## Validation Checks
1. Does the reasoning logically support the risk score? (e.g. "no issues" should NOT have score 90)
2. Are the cited regulations relevant to the detected flags?
3. Is the risk band consistent with the score? (HIGH >= 75, MEDIUM 50-74, LOW 25-49, CLEAN < 25)
4. Are any flags contradictory or unsupported by the transaction data?

Return JSON:
{
  "is_valid": true/false,
  "issues": ["list of specific issues found, empty if valid"],
  "suggested_corrections": {
    "risk_score": null or corrected integer,
    "risk_band": null or corrected string,
    "reasoning": null or improved reasoning string
  },
  "validation_summary": "1-2 sentence summary of your review"
}`,
		current.IsAnomaly, current.RiskScore, current.RiskBand,
		flagsJSON, current.Reasoning, regsJSON,
		profile.UserID, profile.FullName, profile.Country,
		baseline.AvgTxAmountUSD, baseline.AvgDailyTotalUSD,
		txSummary.String())

	var resp validatorResponse
	if err := judgment.JudgeJSON(ctx, v.client, systemInstruction, prompt, v.retries, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}
