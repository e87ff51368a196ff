package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/judgment"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/store"
)

// BaselineStage computes and persists per-user behavioral baselines.
// Writes for the same user are serialized through a keyed mutex so two
// concurrent ingestion runs cannot interleave their persistence.
type BaselineStage struct {
	client    judgment.Client
	baselines store.BaselineStore
	retries   int
	log       *logger.Logger

	userLocks sync.Map // user id -> *sync.Mutex
}

// NewBaselineStage creates the baseline stage.
func NewBaselineStage(client judgment.Client, baselines store.BaselineStore, schemaRetries int, log *logger.Logger) *BaselineStage {
	return &BaselineStage{
		client:    client,
		baselines: baselines,
		retries:   schemaRetries,
		log:       log.Named("baseline"),
	}
}

type baselineResponse struct {
	AvgTxAmountUSD         float64 `json:"avg_tx_amount_usd"`
	AvgDailyTotalUSD       float64 `json:"avg_daily_total_usd"`
	AvgTxPerDay            int     `json:"avg_tx_per_day"`
	StdDevAmount           float64 `json:"std_dev_amount"`
	NormalHourRange        [2]int  `json:"normal_hour_range"`
	ExcludedAnomaliesCount int     `json:"excluded_anomalies_count"`
}

func (r *baselineResponse) validate() error {
	if r.AvgTxAmountUSD < 0 || r.AvgDailyTotalUSD < 0 || r.StdDevAmount < 0 {
		return fmt.Errorf("negative baseline values")
	}
	if r.NormalHourRange[0] < 0 || r.NormalHourRange[1] > 23 || r.NormalHourRange[0] > r.NormalHourRange[1] {
		return fmt.Errorf("invalid normal_hour_range %v", r.NormalHourRange)
	}
	return nil
}

// Compute returns the updated baseline for the user and persists it as the
// baseline of record. The primary path asks the judgment capability for a
// blended estimate; any capability or schema failure degrades to the
// deterministic statistical fallback. The returned bool reports whether
// the fallback was used.
func (s *BaselineStage) Compute(ctx context.Context, profile *domain.UserProfile, transactions []domain.RawTransaction) (*domain.UserBaseline, bool, error) {
	userID := profile.UserID

	prior, err := s.baselines.GetBaseline(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("load prior baseline: %w", err)
	}

	// Empty input: keep the prior (or the fixed default) without touching
	// the capability.
	if len(transactions) == 0 {
		baseline := prior
		if baseline == nil {
			baseline = domain.DefaultBaseline(userID)
		}
		if err := s.persist(ctx, baseline); err != nil {
			return nil, false, err
		}
		return baseline, false, nil
	}

	baseline, err := s.judgeBaseline(ctx, profile, transactions, prior)
	fallback := false
	if err != nil {
		s.log.CapabilityFallback("baseline", err)
		baseline = s.statisticalBaseline(userID, transactions, prior)
		fallback = true
	}

	if err := s.persist(ctx, baseline); err != nil {
		return nil, fallback, err
	}
	return baseline, fallback, nil
}

func (s *BaselineStage) persist(ctx context.Context, baseline *domain.UserBaseline) error {
	lock := s.lockFor(baseline.UserID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.baselines.UpsertBaseline(ctx, baseline); err != nil {
		return fmt.Errorf("persist baseline: %w", err)
	}
	return nil
}

func (s *BaselineStage) lockFor(userID string) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *BaselineStage) judgeBaseline(ctx context.Context, profile *domain.UserProfile, transactions []domain.RawTransaction, prior *domain.UserBaseline) (*domain.UserBaseline, error) {
	var txList strings.Builder
	for _, tx := range transactions {
		fmt.Fprintf(&txList, "- $%.2f %s (%s) at %s from %s, %s\n",
			tx.TransactionAmount, tx.TransactionCcy, tx.TransactionType,
			tx.Timestamp, tx.TransactionCity, tx.TransactionCountry)
	}

	priorInfo := ""
	if prior != nil {
		priorInfo = fmt.Sprintf(`
Previous baseline:
- Avg tx amount: $%.2f
- Avg daily total: $%.2f
- Avg tx per day: %d
- Std deviation: $%.2f
- Normal hours: [%d, %d]
`, prior.AvgTxAmountUSD, prior.AvgDailyTotalUSD, prior.AvgTxPerDay,
			prior.StdDevAmount, prior.NormalHourRange[0], prior.NormalHourRange[1])
	}

	systemInstruction := "You are a financial data analyst. Given transaction data for a user, compute their behavioral baseline. Return ONLY valid JSON."

	prompt := fmt.Sprintf(`User: %s (%s), %s, %s income, %s
%s
Current batch transactions:
%s
Compute and return as JSON:
{
  "avg_tx_amount_usd": <average transaction amount as float>,
  "avg_daily_total_usd": <average total spent per day as float>,
  "avg_tx_per_day": <average number of transactions per day as integer>,
  "std_dev_amount": <standard deviation of transaction amounts as float>,
  "normal_hour_range": [<earliest_typical_hour>, <latest_typical_hour>],
  "excluded_anomalies_count": <how many transactions you'd exclude as outliers as integer>
}

If there's a previous baseline, weight it 70%% and the new data 30%% to create a blended baseline.
Return ONLY valid JSON, no explanation.`,
		profile.UserID, profile.FullName, profile.Country, profile.IncomeLevel,
		profile.Occupation, priorInfo, txList.String())

	var resp baselineResponse
	if err := judgment.JudgeJSON(ctx, s.client, systemInstruction, prompt, s.retries, &resp, resp.validate); err != nil {
		return nil, err
	}

	return &domain.UserBaseline{
		UserID:                 profile.UserID,
		AvgTxAmountUSD:         round2(resp.AvgTxAmountUSD),
		AvgDailyTotalUSD:       round2(resp.AvgDailyTotalUSD),
		AvgTxPerDay:            resp.AvgTxPerDay,
		StdDevAmount:           round2(resp.StdDevAmount),
		NormalHourRange:        resp.NormalHourRange,
		ExcludedAnomaliesCount: resp.ExcludedAnomaliesCount,
	}, nil
}

// statisticalBaseline is the deterministic fallback: mean and sample
// standard deviation over amounts, per-day grouping for daily metrics,
// observed [min,max] hour range.
func (s *BaselineStage) statisticalBaseline(userID string, transactions []domain.RawTransaction, prior *domain.UserBaseline) *domain.UserBaseline {
	if len(transactions) == 0 {
		if prior != nil {
			return prior
		}
		return domain.DefaultBaseline(userID)
	}

	var sum, minAmt, maxAmt float64
	minAmt = transactions[0].TransactionAmount
	maxAmt = transactions[0].TransactionAmount
	for _, tx := range transactions {
		sum += tx.TransactionAmount
		if tx.TransactionAmount < minAmt {
			minAmt = tx.TransactionAmount
		}
		if tx.TransactionAmount > maxAmt {
			maxAmt = tx.TransactionAmount
		}
	}
	mean := sum / float64(len(transactions))

	// Sample standard deviation, floored so zero variance never produces
	// a degenerate baseline for the multiplier checks downstream.
	stdDev := 30.0
	if len(transactions) > 1 {
		var sq float64
		for _, tx := range transactions {
			d := tx.TransactionAmount - mean
			sq += d * d
		}
		stdDev = math.Sqrt(sq / float64(len(transactions)-1))
		if stdDev < 0.01 {
			stdDev = 0.01
		}
	}

	dailyTotals := make(map[string]float64)
	dailyCounts := make(map[string]int)
	var hours []int
	for _, tx := range transactions {
		dateKey := unknownDateBucket
		if ts, err := tx.ParseTimestamp(); err == nil {
			dateKey = ts.Format("2006-01-02")
			hours = append(hours, ts.Hour())
		}
		dailyTotals[dateKey] += tx.TransactionAmount
		dailyCounts[dateKey]++
	}

	var dailySum float64
	for _, v := range dailyTotals {
		dailySum += v
	}
	avgDaily := dailySum / float64(len(dailyTotals))

	var countSum int
	for _, c := range dailyCounts {
		countSum += c
	}
	avgPerDay := countSum / len(dailyCounts)
	if avgPerDay < 1 {
		avgPerDay = 1
	}

	hourRange := [2]int{9, 18}
	if len(hours) > 0 {
		sort.Ints(hours)
		hourRange = [2]int{hours[0], hours[len(hours)-1]}
	}

	return &domain.UserBaseline{
		UserID:           userID,
		AvgTxAmountUSD:   round2(mean),
		AvgDailyTotalUSD: round2(avgDaily),
		AvgTxPerDay:      avgPerDay,
		StdDevAmount:     round2(stdDev),
		NormalHourRange:  hourRange,
		MinTxAmountUSD:   round2(minAmt),
		MaxTxAmountUSD:   round2(maxAmt),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
