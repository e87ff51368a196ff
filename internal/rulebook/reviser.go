package rulebook

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/judgment"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// Reviser runs the judgment stages of the rulebook revision workflow:
// summarizing the incoming regulation, comparing it against the existing
// framework, analyzing its impact, and producing the edited rulebook.
// Every stage has a deterministic fallback so a dead capability still
// yields a reviewable draft.
type Reviser struct {
	client  judgment.Client
	retries int
	log     *logger.Logger
}

// NewReviser creates the revision stage runner.
func NewReviser(client judgment.Client, schemaRetries int, log *logger.Logger) *Reviser {
	return &Reviser{
		client:  client,
		retries: schemaRetries,
		log:     log.Named("reviser"),
	}
}

// Summarize produces a plain-language summary of the regulation. The
// returned bool reports fallback use.
func (r *Reviser) Summarize(ctx context.Context, regulation *domain.Regulation) (string, bool) {
	systemInstruction := "You are a regulatory expert. Summarize regulatory acts in clear, " +
		"concise language suitable for compliance officers. Focus on practical implications."

	prompt := fmt.Sprintf(`Summarize the following new regulatory act in 3-4 clear sentences.
Focus on: what it requires, who it affects, key thresholds, and penalties for non-compliance.

Regulation:
- ID: %s
- Title: %s
- Summary: %s
- Effective date: %s

Write a plain-language summary suitable for a compliance officer. Return just the summary text, no JSON.`,
		regulation.RegulationUpdateID, regulation.UpdateTitle,
		regulation.Summary, regulation.DateEffective)

	out, err := r.client.Judge(ctx, systemInstruction, prompt, false)
	if err != nil {
		r.log.CapabilityFallback("summarize", err)
		return fmt.Sprintf("%s: %s Effective from %s.",
			regulation.UpdateTitle, regulation.Summary, regulation.DateEffective), true
	}
	return strings.Trim(strings.TrimSpace(out), `"`), false
}

type comparisonResponse struct {
	ComparisonPoints []json.RawMessage `json:"comparison_points"`
}

// Compare generates comparison points between the old regulatory framework
// and the new regulation.
func (r *Reviser) Compare(ctx context.Context, oldRegulations []domain.Regulation, newRegulation *domain.Regulation, jurisdiction string) ([]string, bool) {
	var oldRegs strings.Builder
	for _, reg := range oldRegulations {
		fmt.Fprintf(&oldRegs, "- %s: %s\n  Summary: %s\n  Effective: %s\n",
			reg.RegulationUpdateID, reg.UpdateTitle, reg.Summary, reg.DateEffective)
	}

	systemInstruction := "You are a regulatory analyst. Compare old and new regulatory frameworks " +
		"and generate specific comparison points. Return ONLY valid JSON."

	prompt := fmt.Sprintf(`Compare the following old and new regulatory frameworks and generate specific comparison points.

Old regulations for %s:
%s
New regulation being introduced:
- ID: %s
- Title: %s
- Summary: %s
- Effective date: %s

Generate 4-6 specific comparison points. For each point, state:
- What aspect changed (thresholds, reporting, licensing, etc.)
- The old requirement vs the new requirement
- Whether it's stricter, relaxed, or entirely new

Return as JSON:
{
  "comparison_points": ["point 1", "point 2", ...]
}`,
		jurisdiction, oldRegs.String(),
		newRegulation.RegulationUpdateID, newRegulation.UpdateTitle,
		newRegulation.Summary, newRegulation.DateEffective)

	var resp comparisonResponse
	if err := judgment.JudgeJSON(ctx, r.client, systemInstruction, prompt, r.retries, &resp, nil); err != nil {
		r.log.CapabilityFallback("compare", err)
		return []string{
			fmt.Sprintf("New regulation %s introduces additional requirements beyond existing framework", newRegulation.UpdateTitle),
			fmt.Sprintf("Effective from %s, requiring immediate compliance updates", newRegulation.DateEffective),
			"Stricter monitoring thresholds expected based on new regulatory text",
			"Enhanced reporting obligations compared to previous framework",
		}, true
	}

	points := make([]string, 0, len(resp.ComparisonPoints))
	for _, raw := range resp.ComparisonPoints {
		points = append(points, normalizeComparisonPoint(raw))
	}
	return points, false
}

// normalizeComparisonPoint renders any JSON value the capability returned
// as a single display string. Objects have their values joined in
// key-sorted order so the output is stable across runs.
func normalizeComparisonPoint(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprint(obj[k]))
		}
		return strings.Join(parts, " — ")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// Analyze produces the user and operational impact narrative for the
// jurisdiction's current user population.
func (r *Reviser) Analyze(ctx context.Context, oldRegulations []domain.Regulation, newRegulation *domain.Regulation, jurisdiction string, users []*domain.UserProfile, baselines map[string]*domain.UserBaseline) (string, bool) {
	var userLines strings.Builder
	for _, p := range users {
		avgTx, avgDaily, perDay := "N/A", "N/A", "N/A"
		if b := baselines[p.UserID]; b != nil {
			avgTx = fmt.Sprintf("%.2f", b.AvgTxAmountUSD)
			avgDaily = fmt.Sprintf("%.2f", b.AvgDailyTotalUSD)
			perDay = fmt.Sprintf("%d", b.AvgTxPerDay)
		}
		fmt.Fprintf(&userLines, "- %s (%s): avg tx $%s, avg daily $%s, %s tx/day, income: %s\n",
			p.UserID, p.FullName, avgTx, avgDaily, perDay, p.IncomeLevel)
	}

	var oldRegs strings.Builder
	for _, reg := range oldRegulations {
		fmt.Fprintf(&oldRegs, "- %s: %s\n", reg.UpdateTitle, reg.Summary)
	}

	systemInstruction := "You are a compliance impact analyst. Analyze how new regulations " +
		"affect customers and the company. Be specific with numbers and percentages."

	prompt := fmt.Sprintf(`Jurisdiction: %s

Old regulations:
%s
New regulation:
- %s: %s
- Effective: %s

User baselines in this jurisdiction (current behavior):
%s
Analyze:
1. How many users would be affected by the new regulation? Be specific.
2. What behavioral changes might users make to evade the new rules?
3. What is the estimated cost/operational impact on the company?
4. What are the specific risks if the company doesn't adapt its monitoring?

Include numbers and percentages. Be specific and actionable.
Return as a structured analysis paragraph (4-6 sentences). No JSON, just text.`,
		jurisdiction, oldRegs.String(),
		newRegulation.UpdateTitle, newRegulation.Summary, newRegulation.DateEffective,
		userLines.String())

	out, err := r.client.Judge(ctx, systemInstruction, prompt, false)
	if err != nil {
		r.log.CapabilityFallback("analyze", err)
		return fmt.Sprintf("%d users in %s would be affected by %s. "+
			"Users may attempt to structure transactions below new thresholds or shift activity to "+
			"unregulated jurisdictions. Estimated compliance cost increase of 10-15%% for enhanced "+
			"monitoring and reporting requirements. Without adaptation, the company risks regulatory "+
			"penalties and potential license suspension.",
			len(users), jurisdiction, newRegulation.UpdateTitle), true
	}
	return strings.Trim(strings.TrimSpace(out), `"`), false
}

type editResponse struct {
	UpdatedRulebook    map[string]any `json:"updated_rulebook"`
	ChangesDescription string         `json:"changes_description"`
}

// Edit asks the capability for a complete revised rulebook. The result is
// the raw candidate document; the caller runs it through the guardrail
// before anything downstream sees it. The fallback appends a generic
// monitoring rule to a copy of the current rulebook.
func (r *Reviser) Edit(ctx context.Context, impactAnalysis string, current *domain.Rulebook, jurisdiction string) (map[string]any, string, bool) {
	currentJSON, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		currentJSON = []byte("{}")
	}

	systemInstruction := "You are a compliance rulebook engineer. Based on impact analysis and the current " +
		"rulebook, make necessary changes to the monitoring rulebook. Return ONLY valid JSON."

	prompt := fmt.Sprintf(`Impact Analysis:
%s

Current Rulebook for %s:
%s

Your task:
1. Review each category (amount_based, frequency_based, location_based, behavioural_pattern)
   and determine if rules need updating
2. Review the risk_score rules and determine if point values or conditions need adjusting
3. Add new rules if the new regulation introduces requirements not currently covered
4. Adjust risk_bands descriptions if thresholds have changed

Return the COMPLETE updated rulebook as valid JSON with the same structure.
Also provide a brief description of what you changed and why.

Return format:
{
  "updated_rulebook": {
    "amount_based": [...],
    "frequency_based": [...],
    "location_based": [...],
    "behavioural_pattern": [...],
    "risk_score": {
      "range": "0-100",
      "rules": [...],
      "capping": "min(risk_score, 100)"
    },
    "risk_bands": {...}
  },
  "changes_description": "Brief description of changes made"
}`,
		impactAnalysis, jurisdiction, currentJSON)

	var resp editResponse
	if err := judgment.JudgeJSON(ctx, r.client, systemInstruction, prompt, r.retries, &resp, func() error {
		if resp.UpdatedRulebook == nil {
			return fmt.Errorf("missing updated_rulebook")
		}
		return nil
	}); err != nil {
		r.log.CapabilityFallback("edit", err)
		fallback := *current
		fallback.BehaviouralPattern = append(append([]string{}, current.BehaviouralPattern...),
			"Enhanced monitoring required under new regulatory framework")
		doc, docErr := ToDocument(&fallback)
		if docErr != nil {
			doc = map[string]any{}
		}
		return doc, "Added enhanced monitoring rule (deterministic fallback).", true
	}

	desc := resp.ChangesDescription
	if desc == "" {
		desc = "Rulebook updated based on new regulation."
	}
	return resp.UpdatedRulebook, desc, false
}
