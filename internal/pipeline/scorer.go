package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/judgment"
	"github.com/banking/compliance-sentinel/internal/pkg/geo"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/screening"
)

// Fallback point values for the deterministic scoring path.
const (
	pointsAmount5x       = 55
	pointsAmount3x       = 35
	pointsDailyTotal2x   = 30
	pointsNewCountry     = 45
	pointsImpossibleHop  = 60
	pointsFrequencySpike = 35
)

// Scorer judges a batch of enriched transactions against the user's
// baseline and the jurisdiction rulebook. The judgment capability is the
// primary path; a deterministic point table covers capability failure.
type Scorer struct {
	client      judgment.Client
	retries     int
	geoHopMinKM float64
	log         *logger.Logger
}

// NewScorer creates the anomaly scoring stage.
func NewScorer(client judgment.Client, schemaRetries int, geoHopMinKM float64, log *logger.Logger) *Scorer {
	return &Scorer{
		client:      client,
		retries:     schemaRetries,
		geoHopMinKM: geoHopMinKM,
		log:         log.Named("scorer"),
	}
}

type anomalyResponse struct {
	IsAnomaly           bool     `json:"is_anomaly"`
	RiskScore           int      `json:"risk_score"`
	RiskBand            string   `json:"risk_band"`
	Flags               []string `json:"flags"`
	RegulationsViolated []string `json:"regulations_violated"`
	Reasoning           string   `json:"reasoning"`
}

func (r *anomalyResponse) validate() error {
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("risk_score %d outside [0,100]", r.RiskScore)
	}
	if !domain.IsValidBand(r.RiskBand) {
		return fmt.Errorf("unknown risk_band %q", r.RiskBand)
	}
	return nil
}

// Score produces the anomaly result for the batch. Watchlist hits are
// context for the judgment path only; the deterministic fallback scores
// strictly from the point table. The returned bool reports whether the
// fallback produced the result.
func (s *Scorer) Score(ctx context.Context, preprocessed []domain.PreprocessedTransaction, baseline *domain.UserBaseline, profile *domain.UserProfile, compliance *domain.JurisdictionCompliance, hits []screening.Hit) (*domain.AnomalyResult, bool, error) {
	result, err := s.judgeAnomalies(ctx, preprocessed, baseline, profile, compliance, hits)
	if err != nil {
		s.log.CapabilityFallback("scorer", err)
		return s.deterministicScore(preprocessed, baseline, profile), true, nil
	}
	return result, false, nil
}

func (s *Scorer) judgeAnomalies(ctx context.Context, preprocessed []domain.PreprocessedTransaction, baseline *domain.UserBaseline, profile *domain.UserProfile, compliance *domain.JurisdictionCompliance, hits []screening.Hit) (*domain.AnomalyResult, error) {
	jurisdiction := domain.JurisdictionName(profile.Country)
	rulebook := &compliance.Rulebook

	var txDetails strings.Builder
	for _, ptx := range preprocessed {
		fmt.Fprintf(&txDetails,
			"- Amount: $%.2f %s (%s)\n"+
				"  From: %s, %s\n"+
				"  Time: %s (hour: %d)\n"+
				"  Distance from previous: %.0fkm in %ds (speed: %.0f km/h)\n"+
				"  Daily total so far: $%.2f\n"+
				"  Transaction count today: %d\n"+
				"  New country: %t\n",
			ptx.TransactionAmount, ptx.TransactionCcy, ptx.TransactionType,
			ptx.TransactionCity, ptx.TransactionCountry,
			ptx.Timestamp, ptx.HourOfDay,
			ptx.DistanceKM, ptx.TimeSinceLastSec, ptx.ImpliedSpeedKMH(),
			ptx.DailyTotalUSD, ptx.TxCountPerDay, ptx.IsNewCountry)
	}

	var riskRules strings.Builder
	for _, r := range rulebook.RiskScore.Rules {
		pts := "n/a"
		if r.Points != nil {
			pts = fmt.Sprintf("%.0f", *r.Points)
		}
		fmt.Fprintf(&riskRules, "  - %s: %s [%s pts]\n", r.Category, r.Rule, pts)
	}

	var bands strings.Builder
	for _, band := range []string{"HIGH", "MEDIUM", "LOW", "CLEAN"} {
		if v, ok := rulebook.RiskBands[band]; ok {
			fmt.Fprintf(&bands, "  %s: %s\n", band, v)
		}
	}

	var watchlist strings.Builder
	if len(hits) > 0 {
		watchlist.WriteString("\n## Watchlist Screening\n")
		for _, h := range hits {
			fmt.Fprintf(&watchlist, "- %s (%s): %s — %d transaction(s)\n",
				h.Country, h.Severity, h.Reason, h.TxCount)
		}
	}

	systemInstruction := `You are a senior compliance analyst at a crypto trading platform.
You are evaluating a user's transactions for anomalies.
You must return ONLY valid JSON with the specified format.`

	prompt := fmt.Sprintf(`## User Profile
- ID: %s
- Name: %s
- Country: %s (%s)
- Income: %s, Occupation: %s
- KYC: %s, Risk Profile: %s
- Historical countries: %v

## User Baseline
- Avg tx amount: $%.2f
- Avg daily total: $%.2f
- Avg tx per day: %d
- Std deviation: $%.2f
- Normal hours: %v

## Today's Preprocessed Transactions
%s%s
## Jurisdiction Rulebook (%s — version %s)
### Amount-based rules:
%s### Frequency-based rules:
%s### Location-based rules:
%s### Behavioural pattern rules:
%s### Risk scoring rules:
%s### Risk bands:
%s
## Your Task
Analyze the transactions against the user's baseline and the jurisdiction rulebook.
For each anomaly found:
1. Identify the specific rule violated
2. Cite the specific regulation/Act
3. Assign points based on the rulebook's scoring table

Then compute the total risk score (capped at 100) and assign a risk band.

Return as JSON:
{
  "is_anomaly": true/false,
  "risk_score": 0-100,
  "risk_band": "HIGH"/"MEDIUM"/"LOW"/"CLEAN",
  "flags": ["list of specific flags with points"],
  "regulations_violated": ["specific Act names"],
  "reasoning": "2-4 sentence explanation of your analysis, citing specific regulations. Be direct and professional."
}`,
		profile.UserID, profile.FullName, profile.Country, jurisdiction,
		profile.IncomeLevel, profile.Occupation, profile.KYCStatus, profile.RiskProfile,
		profile.HistoricalCountries,
		baseline.AvgTxAmountUSD, baseline.AvgDailyTotalUSD, baseline.AvgTxPerDay,
		baseline.StdDevAmount, baseline.NormalHourRange,
		txDetails.String(), watchlist.String(),
		jurisdiction, compliance.CurrentVersion,
		ruleList(rulebook.AmountBased), ruleList(rulebook.FrequencyBased),
		ruleList(rulebook.LocationBased), ruleList(rulebook.BehaviouralPattern),
		riskRules.String(), bands.String())

	var resp anomalyResponse
	if err := judgment.JudgeJSON(ctx, s.client, systemInstruction, prompt, s.retries, &resp, resp.validate); err != nil {
		return nil, err
	}

	result := &domain.AnomalyResult{
		IsAnomaly:           resp.IsAnomaly,
		RiskScore:           resp.RiskScore,
		RiskBand:            domain.RiskBand(resp.RiskBand),
		Flags:               resp.Flags,
		RegulationsViolated: resp.RegulationsViolated,
		Reasoning:           resp.Reasoning,
	}
	result.Normalize()
	return result, nil
}

func ruleList(rules []string) string {
	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}

// deterministicScore is the point-table fallback. Points accumulate per
// transaction across the batch and the total is capped at 100; flags are
// deduplicated keeping first occurrence order.
func (s *Scorer) deterministicScore(preprocessed []domain.PreprocessedTransaction, baseline *domain.UserBaseline, profile *domain.UserProfile) *domain.AnomalyResult {
	totalPoints := 0
	var flags []string

	for _, ptx := range preprocessed {
		if baseline.AvgTxAmountUSD > 0 {
			ratio := ptx.TransactionAmount / baseline.AvgTxAmountUSD
			if ratio > 5 {
				totalPoints += pointsAmount5x
				flags = append(flags, fmt.Sprintf("Single tx $%.0f > 5x avg $%.0f [+%dpts]",
					ptx.TransactionAmount, baseline.AvgTxAmountUSD, pointsAmount5x))
			} else if ratio > 3 {
				totalPoints += pointsAmount3x
				flags = append(flags, fmt.Sprintf("Single tx $%.0f > 3x avg $%.0f [+%dpts]",
					ptx.TransactionAmount, baseline.AvgTxAmountUSD, pointsAmount3x))
			}
		}

		if baseline.AvgDailyTotalUSD > 0 && ptx.DailyTotalUSD > 2*baseline.AvgDailyTotalUSD {
			totalPoints += pointsDailyTotal2x
			flags = append(flags, fmt.Sprintf("Daily total $%.0f > 2x avg daily $%.0f [+%dpts]",
				ptx.DailyTotalUSD, baseline.AvgDailyTotalUSD, pointsDailyTotal2x))
		}

		if ptx.IsNewCountry {
			totalPoints += pointsNewCountry
			flags = append(flags, fmt.Sprintf("New country %s never seen in history [+%dpts]",
				ptx.TransactionCountry, pointsNewCountry))
		}

		if ptx.DistanceKM > s.geoHopMinKM && ptx.TimeSinceLastSec > 0 {
			minHours := geo.MinTravelHours(ptx.DistanceKM)
			if ptx.ActualTravelHours < minHours {
				hours := ptx.ActualTravelHours
				if hours < 0.01 {
					hours = 0.01
				}
				totalPoints += pointsImpossibleHop
				flags = append(flags, fmt.Sprintf("Impossible geo hop: %.0f km/h exceeds %.0f km/h threshold [+%dpts]",
					ptx.DistanceKM/hours, geo.MaxTravelSpeedKMH, pointsImpossibleHop))
			}
		}

		if baseline.AvgTxPerDay > 0 && ptx.TxCountPerDay > 2*baseline.AvgTxPerDay {
			totalPoints += pointsFrequencySpike
			flags = append(flags, fmt.Sprintf("Frequency spike: %d tx/day > 2x avg %d [+%dpts]",
				ptx.TxCountPerDay, baseline.AvgTxPerDay, pointsFrequencySpike))
		}
	}

	flags = dedupeFlags(flags)
	score := totalPoints
	if score > 100 {
		score = 100
	}

	result := &domain.AnomalyResult{
		RiskScore: score,
		Flags:     flags,
		Reasoning: fmt.Sprintf("Deterministic analysis: %d flags detected with total score %d/100.",
			len(flags), score),
		RegulationsViolated: []string{},
	}
	result.Normalize()
	return result
}

func dedupeFlags(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	out := flags[:0]
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
