package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/store"
)

func newTestBaselineStage(client *fakeJudge, st store.BaselineStore) *BaselineStage {
	return NewBaselineStage(client, st, 2, logger.NewNop())
}

func TestComputeStatisticalFallback(t *testing.T) {
	mem := store.NewMemory()
	stage := newTestBaselineStage(deadJudge(), mem)

	batch := []domain.RawTransaction{
		tx(100, "2025-06-01T09:00:00Z", "MT"),
		tx(200, "2025-06-01T10:00:00Z", "MT"),
		tx(300, "2025-06-01T11:00:00Z", "MT"),
	}
	baseline, usedFallback, err := stage.Compute(context.Background(), testProfile(), batch)
	require.NoError(t, err)
	require.True(t, usedFallback)

	assert.Equal(t, 200.0, baseline.AvgTxAmountUSD)
	assert.Equal(t, 600.0, baseline.AvgDailyTotalUSD)
	assert.Equal(t, 3, baseline.AvgTxPerDay)
	assert.Equal(t, 100.0, baseline.StdDevAmount, "sample standard deviation")
	assert.Equal(t, [2]int{9, 11}, baseline.NormalHourRange)
	assert.Equal(t, 100.0, baseline.MinTxAmountUSD)
	assert.Equal(t, 300.0, baseline.MaxTxAmountUSD)

	// Persisted as the baseline of record.
	stored, err := mem.GetBaseline(context.Background(), "user_test_001")
	require.NoError(t, err)
	assert.Equal(t, baseline, stored)
}

func TestComputeStatisticalFallbackSingleTransaction(t *testing.T) {
	mem := store.NewMemory()
	stage := newTestBaselineStage(deadJudge(), mem)

	baseline, _, err := stage.Compute(context.Background(), testProfile(),
		[]domain.RawTransaction{tx(150, "2025-06-01T14:00:00Z", "MT")})
	require.NoError(t, err)

	assert.Equal(t, 150.0, baseline.AvgTxAmountUSD)
	assert.Equal(t, 30.0, baseline.StdDevAmount, "single point gets the default spread")
	assert.Equal(t, [2]int{14, 14}, baseline.NormalHourRange)
	assert.Equal(t, 1, baseline.AvgTxPerDay)
}

func TestComputeStatisticalFallbackMultiDay(t *testing.T) {
	mem := store.NewMemory()
	stage := newTestBaselineStage(deadJudge(), mem)

	batch := []domain.RawTransaction{
		tx(100, "2025-06-01T09:00:00Z", "MT"),
		tx(100, "2025-06-01T15:00:00Z", "MT"),
		tx(400, "2025-06-02T12:00:00Z", "MT"),
	}
	baseline, _, err := stage.Compute(context.Background(), testProfile(), batch)
	require.NoError(t, err)

	assert.Equal(t, 200.0, baseline.AvgTxAmountUSD)
	assert.Equal(t, 300.0, baseline.AvgDailyTotalUSD, "(200 + 400) / 2 days")
	assert.Equal(t, 1, baseline.AvgTxPerDay, "3 tx over 2 days floors to 1")
	assert.Equal(t, [2]int{9, 15}, baseline.NormalHourRange)
}

func TestComputeEmptyBatchKeepsPrior(t *testing.T) {
	mem := store.NewMemory()
	prior := &domain.UserBaseline{UserID: "user_test_001", AvgTxAmountUSD: 77, AvgDailyTotalUSD: 210, AvgTxPerDay: 2, StdDevAmount: 12, NormalHourRange: [2]int{10, 16}}
	require.NoError(t, mem.UpsertBaseline(context.Background(), prior))

	client := deadJudge()
	stage := newTestBaselineStage(client, mem)

	baseline, usedFallback, err := stage.Compute(context.Background(), testProfile(), nil)
	require.NoError(t, err)
	assert.False(t, usedFallback)
	assert.Equal(t, prior, baseline)
	assert.Zero(t, client.callCount(), "no transactions means no capability call")
}

func TestComputeEmptyBatchNoPriorUsesDefault(t *testing.T) {
	mem := store.NewMemory()
	stage := newTestBaselineStage(deadJudge(), mem)

	baseline, _, err := stage.Compute(context.Background(), testProfile(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultBaseline("user_test_001"), baseline)

	stored, err := mem.GetBaseline(context.Background(), "user_test_001")
	require.NoError(t, err)
	assert.Equal(t, baseline, stored)
}

func TestComputeJudgmentPath(t *testing.T) {
	mem := store.NewMemory()
	client := scriptedJudge(`{
		"avg_tx_amount_usd": 123.456,
		"avg_daily_total_usd": 400.0,
		"avg_tx_per_day": 4,
		"std_dev_amount": 55.5,
		"normal_hour_range": [8, 20],
		"excluded_anomalies_count": 1
	}`)
	stage := newTestBaselineStage(client, mem)

	baseline, usedFallback, err := stage.Compute(context.Background(), testProfile(),
		[]domain.RawTransaction{tx(100, "2025-06-01T09:00:00Z", "MT")})
	require.NoError(t, err)
	assert.False(t, usedFallback)

	assert.Equal(t, 123.46, baseline.AvgTxAmountUSD)
	assert.Equal(t, 400.0, baseline.AvgDailyTotalUSD)
	assert.Equal(t, 4, baseline.AvgTxPerDay)
	assert.Equal(t, [2]int{8, 20}, baseline.NormalHourRange)
	assert.Equal(t, 1, baseline.ExcludedAnomaliesCount)
}

func TestComputeRejectsInvalidHourRange(t *testing.T) {
	// The capability keeps returning an inverted hour range; schema
	// retries exhaust and the statistical fallback takes over.
	bad := `{"avg_tx_amount_usd":100,"avg_daily_total_usd":300,"avg_tx_per_day":3,"std_dev_amount":30,"normal_hour_range":[20,8],"excluded_anomalies_count":0}`
	client := scriptedJudge(bad, bad, bad)
	mem := store.NewMemory()
	stage := newTestBaselineStage(client, mem)

	baseline, usedFallback, err := stage.Compute(context.Background(), testProfile(),
		[]domain.RawTransaction{tx(150, "2025-06-01T14:00:00Z", "MT")})
	require.NoError(t, err)
	assert.True(t, usedFallback)
	assert.Equal(t, [2]int{14, 14}, baseline.NormalHourRange)
}

func TestComputePromptIncludesPriorBaseline(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertBaseline(context.Background(), testBaseline()))
	client := scriptedJudge(`{"avg_tx_amount_usd":100,"avg_daily_total_usd":300,"avg_tx_per_day":3,"std_dev_amount":30,"normal_hour_range":[9,18],"excluded_anomalies_count":0}`)
	stage := newTestBaselineStage(client, mem)

	_, _, err := stage.Compute(context.Background(), testProfile(),
		[]domain.RawTransaction{tx(100, "2025-06-01T09:00:00Z", "MT")})
	require.NoError(t, err)

	assert.Contains(t, client.lastPrompt(), "Previous baseline:")
	assert.Contains(t, client.lastPrompt(), "weight it 70%")
}
