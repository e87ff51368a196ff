package domain

import "time"

// RawTransaction is a single transaction as received from the batch
// source. Immutable once created.
type RawTransaction struct {
	UserID             string  `json:"user_id" db:"user_id"`
	Timestamp          string  `json:"timestamp" db:"timestamp"` // ISO 8601
	TransactionAmount  float64 `json:"transaction_amount_usd" db:"transaction_amount_usd"`
	TransactionCcy     string  `json:"transaction_currency" db:"transaction_currency"`
	TransactionType    string  `json:"transaction_type" db:"transaction_type"` // deposit, withdrawal, transfer
	TransactionCountry string  `json:"transaction_country" db:"transaction_country"`
	TransactionCity    string  `json:"transaction_city" db:"transaction_city"`
}

// ParseTimestamp parses the transaction timestamp, accepting both RFC 3339
// and the common "Z" suffix variant.
func (t *RawTransaction) ParseTimestamp() (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, t.Timestamp); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", t.Timestamp)
}

// PreprocessedTransaction is a RawTransaction plus the derived fields
// produced by the enrichment stage. Produced once per raw transaction, in
// batch order, and never mutated afterwards.
//
// Fields derived from the "previous" transaction refer to the immediately
// preceding transaction in the same batch only. PreviousCountry defaults to
// the profile's home country for the first transaction (display continuity);
// DistanceKM for that first transaction is always 0.
type PreprocessedTransaction struct {
	RawTransaction

	HourOfDay         int     `json:"hour_of_day"`
	TimeSinceLastSec  int     `json:"time_since_last_sec"`
	PreviousCountry   string  `json:"previous_country"`
	PreviousTimestamp string  `json:"previous_timestamp"`
	DistanceKM        float64 `json:"distance_km"`
	ActualTravelHours float64 `json:"actual_travel_hours"`
	DailyTotalUSD     float64 `json:"daily_total_usd"`
	TxCountPerDay     int     `json:"tx_count_per_day"`
	IsNewCountry      bool    `json:"is_new_country"`
}

// ImpliedSpeedKMH returns the travel speed implied by the distance from the
// previous transaction, or 0 when there was no elapsed time.
func (p *PreprocessedTransaction) ImpliedSpeedKMH() float64 {
	if p.ActualTravelHours <= 0 {
		return 0
	}
	return p.DistanceKM / p.ActualTravelHours
}
