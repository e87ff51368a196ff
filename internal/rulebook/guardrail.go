// Package rulebook enforces structural and bounds guardrails on candidate
// rulebooks before they can enter the approval workflow. Candidates arrive
// as untrusted JSON produced by the judgment capability, so the guardrail
// operates on the raw decoded document rather than on typed structs: a
// missing or mistyped key must be observable, not silently zeroed.
package rulebook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/banking/compliance-sentinel/internal/domain"
)

// The four free-text rule categories every rulebook carries.
var categoryKeys = []string{"amount_based", "frequency_based", "location_based", "behavioural_pattern"}

var requiredRiskBands = []string{"HIGH", "MEDIUM", "LOW", "CLEAN"}

var validJurisdictions = map[string]struct{}{
	"MT": {},
	"AE": {},
	"KY": {},
}

// Enforcer applies the guardrail pass. Point bounds come from
// configuration; everything else is fixed policy.
type Enforcer struct {
	pointMin float64
	pointMax float64
}

// NewEnforcer creates a guardrail enforcer with the given point bounds.
func NewEnforcer(pointMin, pointMax float64) *Enforcer {
	return &Enforcer{pointMin: pointMin, pointMax: pointMax}
}

// Apply validates and repairs a candidate rulebook document. Structural
// failure is fail-closed: the previous rulebook is restored wholesale and
// the candidate is discarded. Lesser problems are repaired in place. The
// returned issue list carries a [STRUCTURE], [BOUNDS], [JURISDICTION] or
// [RESTORE] tag per issue; an empty list means the candidate passed clean.
func (e *Enforcer) Apply(candidate map[string]any, jurisdictionCode string, previous *domain.Rulebook) (map[string]any, []string) {
	var issues []string

	structural := e.checkStructure(candidate)
	if len(structural) > 0 {
		for _, s := range structural {
			issues = append(issues, "[STRUCTURE] "+s)
		}
		if previous != nil {
			restored, err := ToDocument(previous)
			if err == nil {
				return restored, issues
			}
			issues = append(issues, "[STRUCTURE] previous rulebook could not be restored: "+err.Error())
		}
	}

	issues = append(issues, e.clampPoints(candidate)...)

	if _, ok := validJurisdictions[strings.ToUpper(jurisdictionCode)]; !ok {
		issues = append(issues, fmt.Sprintf("[JURISDICTION] Invalid jurisdiction %q", jurisdictionCode))
	}

	// Any category list the candidate dropped or mistyped comes back from
	// the previous rulebook key by key.
	if previous != nil {
		prevDoc, err := ToDocument(previous)
		if err == nil {
			for _, key := range categoryKeys {
				if _, ok := candidate[key].([]any); ok {
					continue
				}
				candidate[key] = prevDoc[key]
				issues = append(issues, fmt.Sprintf("[RESTORE] Restored %q from previous rulebook", key))
			}
		}
	}

	return candidate, issues
}

// checkStructure validates the scoring section and the band mapping, the
// two parts that cannot be repaired key by key. The four rule-text lists
// are recoverable individually and are handled by the restore pass.
func (e *Enforcer) checkStructure(candidate map[string]any) []string {
	var errs []string

	riskScore, ok := candidate["risk_score"]
	if !ok {
		errs = append(errs, `Missing required key: "risk_score"`)
	} else if rs, isMap := riskScore.(map[string]any); !isMap {
		errs = append(errs, fmt.Sprintf(`Key "risk_score" expected object, got %T`, riskScore))
	} else {
		if _, ok := rs["rules"]; !ok {
			errs = append(errs, `risk_score missing "rules" list`)
		}
		if _, ok := rs["capping"]; !ok {
			errs = append(errs, `risk_score missing "capping" field`)
		}
	}

	riskBands, ok := candidate["risk_bands"]
	if !ok {
		errs = append(errs, `Missing required key: "risk_bands"`)
	} else if rb, isMap := riskBands.(map[string]any); !isMap {
		errs = append(errs, fmt.Sprintf(`Key "risk_bands" expected object, got %T`, riskBands))
	} else {
		var missing []string
		for _, band := range requiredRiskBands {
			if _, ok := rb[band]; !ok {
				missing = append(missing, band)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			errs = append(errs, fmt.Sprintf("risk_bands missing keys: %v", missing))
		}
	}

	return errs
}

// clampPoints forces every numeric point value into [pointMin, pointMax].
// Rules without a numeric points field pass through untouched.
func (e *Enforcer) clampPoints(candidate map[string]any) []string {
	var issues []string

	rs, ok := candidate["risk_score"].(map[string]any)
	if !ok {
		return nil
	}
	rules, ok := rs["rules"].([]any)
	if !ok {
		return nil
	}

	for _, item := range rules {
		rule, ok := item.(map[string]any)
		if !ok {
			continue
		}
		points, ok := rule["points"].(float64)
		if !ok {
			continue
		}
		name := "?"
		if n, ok := rule["rule"].(string); ok {
			name = n
		}
		if points < e.pointMin {
			issues = append(issues, fmt.Sprintf("[BOUNDS] Rule %q had points=%v, clamped to %v", name, points, e.pointMin))
			rule["points"] = e.pointMin
		} else if points > e.pointMax {
			issues = append(issues, fmt.Sprintf("[BOUNDS] Rule %q had points=%v, clamped to %v", name, points, e.pointMax))
			rule["points"] = e.pointMax
		}
	}
	return issues
}

// ToDocument converts a typed rulebook into its raw JSON document form.
func ToDocument(r *domain.Rulebook) (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument converts a guardrail-passed document back into the typed
// rulebook used by the rest of the system.
func FromDocument(doc map[string]any) (*domain.Rulebook, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var r domain.Rulebook
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
