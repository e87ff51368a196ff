package domain

// RiskBand is the coarse classification of a 0-100 risk score.
type RiskBand string

const (
	BandClean  RiskBand = "CLEAN"
	BandLow    RiskBand = "LOW"
	BandMedium RiskBand = "MEDIUM"
	BandHigh   RiskBand = "HIGH"
)

// RiskTier is the profile-level tier derived from the latest risk score.
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// BandForScore maps a risk score to its band. Every component that assigns
// or re-derives a band goes through this function; the band is never
// computed anywhere else.
func BandForScore(score int) RiskBand {
	switch {
	case score >= 75:
		return BandHigh
	case score >= 50:
		return BandMedium
	case score >= 25:
		return BandLow
	default:
		return BandClean
	}
}

// TierForScore maps a risk score to the coarse profile tier using the same
// 50/25 thresholds as the anomaly flag.
func TierForScore(score int) RiskTier {
	switch {
	case score >= 50:
		return TierHigh
	case score >= 25:
		return TierMedium
	default:
		return TierLow
	}
}

// ClampScore forces a score into the valid [0,100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// IsValidBand reports whether s is one of the four defined bands.
func IsValidBand(s string) bool {
	switch RiskBand(s) {
	case BandClean, BandLow, BandMedium, BandHigh:
		return true
	}
	return false
}

// AnomalyResult is the risk judgment for one transaction batch.
type AnomalyResult struct {
	IsAnomaly           bool     `json:"is_anomaly"`
	RiskScore           int      `json:"risk_score"` // 0-100, capped
	RiskBand            RiskBand `json:"risk_band"`
	Flags               []string `json:"flags"`
	RegulationsViolated []string `json:"regulations_violated"`
	Reasoning           string   `json:"reasoning"`
}

// Normalize clamps the score and re-derives the dependent fields. Called
// after any partial mutation so the band invariant can never go stale.
func (r *AnomalyResult) Normalize() {
	r.RiskScore = ClampScore(r.RiskScore)
	r.RiskBand = BandForScore(r.RiskScore)
	r.IsAnomaly = r.RiskScore >= 25
}

// RiskState is the per-user risk snapshot owned by the most recent
// completed ingestion run. Each write is a single atomic replace.
type RiskState struct {
	UserID    string   `json:"user_id" db:"user_id"`
	RiskScore int      `json:"risk_score" db:"risk_score"`
	RiskBand  RiskBand `json:"risk_band" db:"risk_band"`
	RiskTier  RiskTier `json:"risk_tier" db:"risk_tier"`
}
