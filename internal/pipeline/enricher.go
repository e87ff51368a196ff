// Package pipeline implements the anomaly-detection and rulebook-evolution
// pipeline: deterministic enrichment, baseline computation, risk scoring
// with an untrusted-judgment validation loop, and the orchestration of the
// two top-level workflows.
package pipeline

import (
	"math"
	"time"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/geo"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// unknownDateBucket is the daily-total bucket used for transactions whose
// timestamp cannot be parsed. Enrichment substitutes this coarse default
// and proceeds; a malformed timestamp never aborts a batch.
const unknownDateBucket = "unknown"

// Enricher is the deterministic enrichment stage. Stateless across calls;
// each Enrich invocation holds its own running state for the batch.
type Enricher struct {
	log *logger.Logger
}

// NewEnricher creates the enrichment stage.
func NewEnricher(log *logger.Logger) *Enricher {
	return &Enricher{log: log.Named("enricher")}
}

// Enrich produces one PreprocessedTransaction per input, in order, using
// only information available up to and including that transaction.
//
// The first transaction carries the profile's home country as its
// PreviousCountry for display continuity, but its DistanceKM is always 0:
// there is no genuine previous transaction to travel from.
func (e *Enricher) Enrich(profile *domain.UserProfile, transactions []domain.RawTransaction) []domain.PreprocessedTransaction {
	start := time.Now()

	preprocessed := make([]domain.PreprocessedTransaction, 0, len(transactions))
	dailyTotals := make(map[string]float64)
	dailyCounts := make(map[string]int)

	prevCountry := profile.Country
	prevTimestamp := ""
	var prevTime time.Time
	prevParsed := false

	for _, tx := range transactions {
		ts, err := tx.ParseTimestamp()
		parsed := err == nil

		hourOfDay := 0
		dateKey := unknownDateBucket
		if parsed {
			hourOfDay = ts.Hour()
			dateKey = ts.Format("2006-01-02")
		}

		dailyTotals[dateKey] += tx.TransactionAmount
		dailyCounts[dateKey]++

		timeSinceLastSec := 0
		if prevTimestamp != "" && parsed && prevParsed {
			delta := int(ts.Sub(prevTime).Seconds())
			if delta > 0 {
				timeSinceLastSec = delta
			}
		}

		// Distance is only meaningful between two genuine transactions in
		// this batch; the home-country fallback must not produce a hop.
		distanceKM := 0.0
		if prevTimestamp != "" && prevCountry != tx.TransactionCountry {
			distanceKM = geo.CountryDistanceKM(prevCountry, tx.TransactionCountry)
		}

		actualTravelHours := 0.0
		if timeSinceLastSec > 0 {
			actualTravelHours = math.Round(float64(timeSinceLastSec)/3600.0*100) / 100
		}

		preprocessed = append(preprocessed, domain.PreprocessedTransaction{
			RawTransaction:    tx,
			HourOfDay:         hourOfDay,
			TimeSinceLastSec:  timeSinceLastSec,
			PreviousCountry:   prevCountry,
			PreviousTimestamp: prevTimestamp,
			DistanceKM:        distanceKM,
			ActualTravelHours: actualTravelHours,
			DailyTotalUSD:     math.Round(dailyTotals[dateKey]*100) / 100,
			TxCountPerDay:     dailyCounts[dateKey],
			IsNewCountry:      !profile.HasSeenCountry(tx.TransactionCountry),
		})

		prevCountry = tx.TransactionCountry
		prevTimestamp = tx.Timestamp
		prevTime = ts
		prevParsed = parsed
	}

	e.log.StageCompleted("enricher", false, time.Since(start).Milliseconds())
	return preprocessed
}
