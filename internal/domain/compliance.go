package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Regulation is a single regulatory act, either historical or newly
// introduced.
type Regulation struct {
	RegulationUpdateID string `json:"regulation_update_id" db:"regulation_update_id"`
	UpdateTitle        string `json:"update_title" db:"update_title"`
	Summary            string `json:"summary" db:"summary"`
	DateEffective      string `json:"date_effective" db:"date_effective"`
}

// RuleEntry is one scoring rule in the rulebook's point table. Points is a
// pointer so a rule that arrives without a numeric point value survives the
// guardrail pass untouched instead of collapsing to zero.
type RuleEntry struct {
	Category string   `json:"category"`
	Rule     string   `json:"rule"`
	Points   *float64 `json:"points,omitempty"`
}

// ScoringPolicy is the rulebook's risk_score section.
type ScoringPolicy struct {
	Range   string      `json:"range,omitempty"`
	Rules   []RuleEntry `json:"rules"`
	Capping string      `json:"capping"`
}

// Rulebook is a jurisdiction's current monitoring rule set. It is only
// ever replaced through the guardrail-validated edit workflow followed by
// an explicit approval; the scoring stage treats it as read-only.
type Rulebook struct {
	AmountBased        []string          `json:"amount_based"`
	FrequencyBased     []string          `json:"frequency_based"`
	LocationBased      []string          `json:"location_based"`
	BehaviouralPattern []string          `json:"behavioural_pattern"`
	RiskScore          ScoringPolicy     `json:"risk_score"`
	RiskBands          map[string]string `json:"risk_bands"`
}

// RuleCount returns the total number of free-text rules across the four
// categories.
func (r *Rulebook) RuleCount() int {
	return len(r.AmountBased) + len(r.FrequencyBased) +
		len(r.LocationBased) + len(r.BehaviouralPattern)
}

// JurisdictionCompliance is the full compliance state for one jurisdiction.
type JurisdictionCompliance struct {
	Jurisdiction     string       `json:"jurisdiction" db:"jurisdiction"`
	JurisdictionCode string       `json:"jurisdiction_code" db:"jurisdiction_code"`
	CurrentVersion   string       `json:"current_version" db:"current_version"`
	OldRegulations   []Regulation `json:"old_regulations" db:"old_regulations"`
	NewRegulations   []Regulation `json:"new_regulations" db:"new_regulations"`
	Rulebook         Rulebook     `json:"rulebook" db:"rulebook"`
}

// NextVersion returns the version tag following the current one ("v1" → "v2").
func (j *JurisdictionCompliance) NextVersion() string {
	n := 0
	for _, r := range j.CurrentVersion {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return "v" + strconv.Itoa(n+1)
}

var jurisdictionNames = map[string]string{
	"MT": "Malta",
	"AE": "UAE",
	"KY": "Cayman Islands",
}

// JurisdictionName returns the display name for a jurisdiction code,
// falling back to the code itself for unknown jurisdictions.
func JurisdictionName(code string) string {
	if name, ok := jurisdictionNames[code]; ok {
		return name
	}
	return code
}

// DraftStatus is the lifecycle state of a compliance draft.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftApproved DraftStatus = "approved"
	DraftRejected DraftStatus = "rejected"
)

// ComplianceDraft is a proposed rulebook revision awaiting explicit human
// approval. The push workflow creates it as pending; approve/reject is the
// single terminal mutation.
type ComplianceDraft struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	JurisdictionCode string      `json:"jurisdiction_code" db:"jurisdiction_code"`
	RegulationID     string      `json:"regulation_id" db:"regulation_id"`
	ProposedVersion  string      `json:"proposed_version" db:"proposed_version"`
	Status           DraftStatus `json:"status" db:"status"`

	ProposedRulebook Rulebook `json:"proposed_rulebook" db:"proposed_rulebook"`
	PreviousRulebook Rulebook `json:"previous_rulebook" db:"previous_rulebook"`

	// Narrative artifacts from the push workflow.
	Summary           string   `json:"summary" db:"summary"`
	ComparisonPoints  []string `json:"comparison_points" db:"comparison_points"`
	ImpactAnalysis    string   `json:"impact_analysis" db:"impact_analysis"`
	ChangeDescription string   `json:"change_description" db:"change_description"`
	GuardrailIssues   []string `json:"guardrail_issues" db:"guardrail_issues"`

	Trace []AgentStep `json:"trace" db:"trace"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IsOpen reports whether the draft can still be approved or rejected.
func (d *ComplianceDraft) IsOpen() bool {
	return d.Status == DraftPending
}
