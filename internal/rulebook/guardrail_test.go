package rulebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-sentinel/internal/domain"
)

func points(v float64) *float64 { return &v }

func trustedRulebook() *domain.Rulebook {
	return &domain.Rulebook{
		AmountBased:        []string{"Large transactions require documentation"},
		FrequencyBased:     []string{"Burst activity requires review"},
		LocationBased:      []string{"High-risk jurisdictions require monitoring"},
		BehaviouralPattern: []string{"Profile deviations must be investigated"},
		RiskScore: domain.ScoringPolicy{
			Range: "0-100",
			Rules: []domain.RuleEntry{
				{Category: "amount", Rule: "Exceeds 5x baseline", Points: points(50)},
			},
			Capping: "min(risk_score, 100)",
		},
		RiskBands: map[string]string{
			"HIGH": "freeze", "MEDIUM": "monitor", "LOW": "review", "CLEAN": "none",
		},
	}
}

func candidateDoc(t *testing.T) map[string]any {
	t.Helper()
	doc, err := ToDocument(trustedRulebook())
	require.NoError(t, err)
	return doc
}

func TestApplyCleanCandidate(t *testing.T) {
	e := NewEnforcer(0, 50)
	out, issues := e.Apply(candidateDoc(t), "MT", trustedRulebook())
	assert.Empty(t, issues)
	assert.NotNil(t, out["risk_score"])
}

func TestApplyMissingRiskBandsFailsClosed(t *testing.T) {
	e := NewEnforcer(0, 50)
	prev := trustedRulebook()

	candidate := candidateDoc(t)
	candidate["amount_based"] = []any{"attacker rule"}
	delete(candidate, "risk_bands")

	out, issues := e.Apply(candidate, "MT", prev)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "[STRUCTURE]")

	// The candidate is discarded wholesale, including its category edits.
	restored, err := FromDocument(out)
	require.NoError(t, err)
	assert.Equal(t, prev, restored)
}

func TestApplyMistypedRiskScoreFailsClosed(t *testing.T) {
	e := NewEnforcer(0, 50)
	prev := trustedRulebook()

	candidate := candidateDoc(t)
	candidate["risk_score"] = "not an object"

	out, issues := e.Apply(candidate, "MT", prev)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "[STRUCTURE]")

	restored, err := FromDocument(out)
	require.NoError(t, err)
	assert.Equal(t, prev, restored)
}

func TestApplyIncompleteRiskBandsFailsClosed(t *testing.T) {
	e := NewEnforcer(0, 50)

	candidate := candidateDoc(t)
	candidate["risk_bands"] = map[string]any{"HIGH": "freeze", "LOW": "review"}

	_, issues := e.Apply(candidate, "MT", trustedRulebook())
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "[STRUCTURE]")
	assert.Contains(t, issues[0], "CLEAN")
	assert.Contains(t, issues[0], "MEDIUM")
}

func TestApplyClampsPoints(t *testing.T) {
	e := NewEnforcer(0, 50)

	candidate := candidateDoc(t)
	candidate["risk_score"].(map[string]any)["rules"] = []any{
		map[string]any{"category": "amount", "rule": "way too hot", "points": float64(999)},
		map[string]any{"category": "frequency", "rule": "negative", "points": float64(-10)},
		map[string]any{"category": "location", "rule": "fine", "points": float64(45)},
	}

	out, issues := e.Apply(candidate, "MT", trustedRulebook())
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "[BOUNDS]")
	assert.Contains(t, issues[0], `"way too hot"`)
	assert.Contains(t, issues[1], "[BOUNDS]")

	rules := out["risk_score"].(map[string]any)["rules"].([]any)
	assert.Equal(t, 50.0, rules[0].(map[string]any)["points"])
	assert.Equal(t, 0.0, rules[1].(map[string]any)["points"])
	assert.Equal(t, 45.0, rules[2].(map[string]any)["points"])
}

func TestApplyRuleWithoutPointsPassesThrough(t *testing.T) {
	e := NewEnforcer(0, 50)

	candidate := candidateDoc(t)
	candidate["risk_score"].(map[string]any)["rules"] = []any{
		map[string]any{"category": "amount", "rule": "no numeric value yet"},
	}

	out, issues := e.Apply(candidate, "MT", trustedRulebook())
	assert.Empty(t, issues)

	rules := out["risk_score"].(map[string]any)["rules"].([]any)
	_, hasPoints := rules[0].(map[string]any)["points"]
	assert.False(t, hasPoints, "the enforcer never fabricates point values")
}

func TestApplyInvalidJurisdiction(t *testing.T) {
	e := NewEnforcer(0, 50)
	_, issues := e.Apply(candidateDoc(t), "XX", trustedRulebook())
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "[JURISDICTION]")
	assert.Contains(t, issues[0], `"XX"`)
}

func TestApplyJurisdictionCaseInsensitive(t *testing.T) {
	e := NewEnforcer(0, 50)
	_, issues := e.Apply(candidateDoc(t), "mt", trustedRulebook())
	assert.Empty(t, issues)
}

func TestApplyRestoresDroppedCategory(t *testing.T) {
	e := NewEnforcer(0, 50)
	prev := trustedRulebook()

	candidate := candidateDoc(t)
	delete(candidate, "frequency_based")
	candidate["location_based"] = "should be a list"

	out, issues := e.Apply(candidate, "MT", prev)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "[RESTORE]")
	assert.Contains(t, issues[0], "frequency_based")
	assert.Contains(t, issues[1], "[RESTORE]")
	assert.Contains(t, issues[1], "location_based")

	restored, err := FromDocument(out)
	require.NoError(t, err)
	assert.Equal(t, prev.FrequencyBased, restored.FrequencyBased)
	assert.Equal(t, prev.LocationBased, restored.LocationBased)
	// The intact categories keep the candidate's content.
	assert.Equal(t, prev.AmountBased, restored.AmountBased)
}

func TestDocumentRoundTrip(t *testing.T) {
	r := trustedRulebook()
	doc, err := ToDocument(r)
	require.NoError(t, err)
	back, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}
