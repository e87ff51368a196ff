// Package screening performs jurisdiction watchlist checks on enriched
// transaction batches. Hits are advisory context for the risk judgment
// and the audit trail; they never adjust the score directly.
package screening

import (
	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// Severity classifies a watchlist hit.
type Severity string

const (
	SeveritySanctioned Severity = "sanctioned"
	SeverityHighRisk   Severity = "high_risk"
)

// Comprehensively sanctioned jurisdictions. Any transaction touching one
// is a sanctioned-severity hit.
var sanctionedCountries = map[string]string{
	"KP": "North Korea (UN/OFAC comprehensive sanctions)",
	"IR": "Iran (UN/OFAC comprehensive sanctions)",
	"SY": "Syria (OFAC comprehensive sanctions)",
	"CU": "Cuba (OFAC comprehensive sanctions)",
}

// Jurisdictions under enhanced monitoring (FATF grey list and similar).
var highRiskCountries = map[string]string{
	"RU": "Russia (enhanced due diligence required)",
	"PK": "Pakistan (FATF increased monitoring)",
	"NG": "Nigeria (FATF increased monitoring)",
	"SA": "Saudi Arabia (enhanced monitoring)",
	"JM": "Jamaica (FATF increased monitoring)",
}

// Hit is a single watchlist finding for a batch.
type Hit struct {
	Country  string   `json:"country"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
	TxCount  int      `json:"tx_count"`
}

// Screener checks transaction batches against the jurisdiction watchlists.
type Screener struct {
	log *logger.Logger
}

// NewScreener creates a watchlist screener.
func NewScreener(log *logger.Logger) *Screener {
	return &Screener{log: log.Named("screening")}
}

// Screen returns one hit per watchlisted country touched by the batch,
// sanctioned hits first.
func (s *Screener) Screen(transactions []domain.PreprocessedTransaction) []Hit {
	counts := make(map[string]int)
	order := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		if _, seen := counts[tx.TransactionCountry]; !seen {
			order = append(order, tx.TransactionCountry)
		}
		counts[tx.TransactionCountry]++
	}

	var sanctioned, highRisk []Hit
	for _, country := range order {
		if reason, ok := sanctionedCountries[country]; ok {
			sanctioned = append(sanctioned, Hit{
				Country:  country,
				Severity: SeveritySanctioned,
				Reason:   reason,
				TxCount:  counts[country],
			})
			continue
		}
		if reason, ok := highRiskCountries[country]; ok {
			highRisk = append(highRisk, Hit{
				Country:  country,
				Severity: SeverityHighRisk,
				Reason:   reason,
				TxCount:  counts[country],
			})
		}
	}

	hits := append(sanctioned, highRisk...)
	for _, h := range hits {
		s.log.Warn("watchlist country in batch",
			logger.StringField("country", h.Country),
			logger.StringField("severity", string(h.Severity)),
			logger.IntField("tx_count", h.TxCount),
		)
	}
	return hits
}
