package domain

// IncomeLevel buckets a user's declared income.
type IncomeLevel string

const (
	IncomeLow    IncomeLevel = "low"
	IncomeMedium IncomeLevel = "medium"
	IncomeHigh   IncomeLevel = "high"
)

// KYCStatus is the user's identity verification state.
type KYCStatus string

const (
	KYCVerified KYCStatus = "verified"
	KYCPending  KYCStatus = "pending"
)

// UserProfile is the static identity and history of a monitored user.
// The risk tier is the only field mutated after creation, and only by
// derivation from the latest risk state.
type UserProfile struct {
	UserID              string      `json:"user_id" db:"user_id"`
	FullName            string      `json:"full_name" db:"full_name"`
	Age                 int         `json:"age" db:"age"`
	Country             string      `json:"country" db:"country"` // ISO 3166-1 alpha-2
	Occupation          string      `json:"occupation" db:"occupation"`
	IncomeLevel         IncomeLevel `json:"income_level" db:"income_level"`
	KYCStatus           KYCStatus   `json:"kyc_status" db:"kyc_status"`
	RiskProfile         RiskTier    `json:"risk_profile" db:"risk_profile"`
	HistoricalCountries []string    `json:"historical_countries" db:"historical_countries"`
}

// HasSeenCountry reports whether the country appears in the user's
// historical-country set.
func (p *UserProfile) HasSeenCountry(country string) bool {
	for _, c := range p.HistoricalCountries {
		if c == country {
			return true
		}
	}
	return false
}

// UserBaseline is the user's expected behavioral profile. It is replaced
// wholesale on every ingestion run, never mutated in place.
type UserBaseline struct {
	UserID                 string  `json:"user_id" db:"user_id"`
	AvgTxAmountUSD         float64 `json:"avg_tx_amount_usd" db:"avg_tx_amount_usd"`
	AvgDailyTotalUSD       float64 `json:"avg_daily_total_usd" db:"avg_daily_total_usd"`
	AvgTxPerDay            int     `json:"avg_tx_per_day" db:"avg_tx_per_day"`
	StdDevAmount           float64 `json:"std_dev_amount" db:"std_dev_amount"`
	NormalHourRange        [2]int  `json:"normal_hour_range" db:"normal_hour_range"`
	ExcludedAnomaliesCount int     `json:"excluded_anomalies_count" db:"excluded_anomalies_count"`
	MinTxAmountUSD         float64 `json:"min_tx_amount_usd,omitempty" db:"min_tx_amount_usd"`
	MaxTxAmountUSD         float64 `json:"max_tx_amount_usd,omitempty" db:"max_tx_amount_usd"`
}

// DefaultBaseline is the seed baseline used when a user has no prior
// baseline and no transactions to compute one from.
func DefaultBaseline(userID string) *UserBaseline {
	return &UserBaseline{
		UserID:           userID,
		AvgTxAmountUSD:   100.0,
		AvgDailyTotalUSD: 300.0,
		AvgTxPerDay:      3,
		StdDevAmount:     30.0,
		NormalHourRange:  [2]int{9, 18},
	}
}
