package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/screening"
)

func newTestScorer(client *fakeJudge) *Scorer {
	return NewScorer(client, 2, 500, logger.NewNop())
}

func ptx(amount float64, opts ...func(*domain.PreprocessedTransaction)) domain.PreprocessedTransaction {
	p := domain.PreprocessedTransaction{
		RawTransaction: tx(amount, "2025-06-01T09:00:00Z", "MT"),
		HourOfDay:      9,
		DailyTotalUSD:  amount,
		TxCountPerDay:  1,
	}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func TestFallbackScoreCleanBatch(t *testing.T) {
	s := newTestScorer(deadJudge())

	result, usedFallback, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(100)},
		testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	require.True(t, usedFallback)

	assert.Zero(t, result.RiskScore)
	assert.Equal(t, domain.BandClean, result.RiskBand)
	assert.False(t, result.IsAnomaly)
	assert.Empty(t, result.Flags)
	assert.Equal(t, "Deterministic analysis: 0 flags detected with total score 0/100.", result.Reasoning)
	assert.NotNil(t, result.RegulationsViolated)
}

func TestFallbackScoreAmountThreeTimesAverage(t *testing.T) {
	s := newTestScorer(deadJudge())

	result, usedFallback, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(350)},
		testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	require.True(t, usedFallback)

	assert.Equal(t, 35, result.RiskScore)
	assert.Equal(t, domain.BandLow, result.RiskBand)
	assert.True(t, result.IsAnomaly)
	require.Len(t, result.Flags, 1)
	assert.Equal(t, "Single tx $350 > 3x avg $100 [+35pts]", result.Flags[0])
}

func TestFallbackScoreFiveTimesAverageNewCountry(t *testing.T) {
	s := newTestScorer(deadJudge())

	batch := []domain.PreprocessedTransaction{
		ptx(1000, func(p *domain.PreprocessedTransaction) {
			p.TransactionCountry = "SG"
			p.IsNewCountry = true
			p.DailyTotalUSD = 500
		}),
	}
	result, usedFallback, err := s.Score(context.Background(),
		batch, testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	require.True(t, usedFallback)

	assert.Equal(t, 100, result.RiskScore)
	assert.Equal(t, domain.BandHigh, result.RiskBand)
	assert.True(t, result.IsAnomaly)
	require.Len(t, result.Flags, 2)
	assert.Equal(t, "Single tx $1000 > 5x avg $100 [+55pts]", result.Flags[0])
	assert.Equal(t, "New country SG never seen in history [+45pts]", result.Flags[1])
}

func TestFallbackScoreDailyTotalAndFrequency(t *testing.T) {
	s := newTestScorer(deadJudge())

	batch := []domain.PreprocessedTransaction{
		ptx(100, func(p *domain.PreprocessedTransaction) {
			p.DailyTotalUSD = 700 // > 2x avg daily 300
			p.TxCountPerDay = 7   // > 2x avg 3
		}),
	}
	result, _, err := s.Score(context.Background(),
		batch, testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)

	assert.Equal(t, 65, result.RiskScore)
	require.Len(t, result.Flags, 2)
	assert.Equal(t, "Daily total $700 > 2x avg daily $300 [+30pts]", result.Flags[0])
	assert.Equal(t, "Frequency spike: 7 tx/day > 2x avg 3 [+35pts]", result.Flags[1])
}

func TestFallbackScoreImpossibleGeoHop(t *testing.T) {
	s := newTestScorer(deadJudge())

	batch := []domain.PreprocessedTransaction{
		ptx(100, func(p *domain.PreprocessedTransaction) {
			p.DistanceKM = 7000
			p.TimeSinceLastSec = 3600
			p.ActualTravelHours = 1.0
		}),
	}
	result, _, err := s.Score(context.Background(),
		batch, testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)

	assert.Equal(t, 60, result.RiskScore)
	assert.Equal(t, domain.BandMedium, result.RiskBand)
	require.Len(t, result.Flags, 1)
	assert.Equal(t, "Impossible geo hop: 7000 km/h exceeds 800 km/h threshold [+60pts]", result.Flags[0])
}

func TestFallbackScorePlausibleTravelNotFlagged(t *testing.T) {
	s := newTestScorer(deadJudge())

	batch := []domain.PreprocessedTransaction{
		ptx(100, func(p *domain.PreprocessedTransaction) {
			p.DistanceKM = 700
			p.TimeSinceLastSec = 7200
			p.ActualTravelHours = 2.0
		}),
	}
	result, _, err := s.Score(context.Background(),
		batch, testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.RiskScore)
	assert.Empty(t, result.Flags)
}

func TestFallbackScoreDeduplicatesFlagsButKeepsPoints(t *testing.T) {
	s := newTestScorer(deadJudge())

	hop := func(p *domain.PreprocessedTransaction) {
		p.DistanceKM = 7000
		p.TimeSinceLastSec = 3600
		p.ActualTravelHours = 1.0
	}
	batch := []domain.PreprocessedTransaction{
		ptx(100, hop),
		ptx(200, hop, func(p *domain.PreprocessedTransaction) {
			p.DailyTotalUSD = 300
			p.TxCountPerDay = 2
		}),
	}
	result, _, err := s.Score(context.Background(),
		batch, testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)

	// Both hops score, the identical flag text appears once.
	assert.Equal(t, 100, result.RiskScore)
	require.Len(t, result.Flags, 1)
	assert.Equal(t, "Impossible geo hop: 7000 km/h exceeds 800 km/h threshold [+60pts]", result.Flags[0])
}

func TestFallbackScoreZeroBaselineSkipsAmountChecks(t *testing.T) {
	s := newTestScorer(deadJudge())
	baseline := testBaseline()
	baseline.AvgTxAmountUSD = 0
	baseline.AvgDailyTotalUSD = 0
	baseline.AvgTxPerDay = 0

	result, _, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(50000)},
		baseline, testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.RiskScore)
	assert.Empty(t, result.Flags)
}

func TestScoreJudgmentPathNormalizesBand(t *testing.T) {
	// The capability returns a band inconsistent with its own score; the
	// deterministic derivation wins.
	client := scriptedJudge(`{
		"is_anomaly": true,
		"risk_score": 80,
		"risk_band": "LOW",
		"flags": ["Large transfer"],
		"regulations_violated": ["Prevention of Money Laundering Act"],
		"reasoning": "Transaction far above baseline."
	}`)
	s := newTestScorer(client)

	result, usedFallback, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(1000)},
		testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	assert.False(t, usedFallback)

	assert.Equal(t, 80, result.RiskScore)
	assert.Equal(t, domain.BandHigh, result.RiskBand)
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, []string{"Large transfer"}, result.Flags)
	assert.Equal(t, []string{"Prevention of Money Laundering Act"}, result.RegulationsViolated)
}

func TestScoreRetriesOnMalformedOutput(t *testing.T) {
	client := scriptedJudge(
		"this is not json",
		`{"is_anomaly":false,"risk_score":10,"risk_band":"CLEAN","flags":[],"regulations_violated":[],"reasoning":"ok"}`,
	)
	s := newTestScorer(client)

	result, usedFallback, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(100)},
		testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	assert.False(t, usedFallback)
	assert.Equal(t, 10, result.RiskScore)
	assert.Equal(t, 2, client.callCount())
}

func TestScoreFallsBackAfterSchemaRetriesExhausted(t *testing.T) {
	// Parsable output, impossible score, every attempt. Retries exhaust
	// and the deterministic path takes over.
	bad := `{"is_anomaly":true,"risk_score":150,"risk_band":"HIGH","flags":[],"regulations_violated":[],"reasoning":"x"}`
	client := scriptedJudge(bad, bad, bad)
	s := newTestScorer(client)

	result, usedFallback, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(350)},
		testBaseline(), testProfile(), testCompliance(), nil)
	require.NoError(t, err)
	assert.True(t, usedFallback)
	assert.Equal(t, 35, result.RiskScore)
	assert.Equal(t, 3, client.callCount())
}

func TestScorePromptCarriesWatchlistHits(t *testing.T) {
	client := scriptedJudge(`{"is_anomaly":false,"risk_score":0,"risk_band":"CLEAN","flags":[],"regulations_violated":[],"reasoning":"ok"}`)
	s := newTestScorer(client)

	hits := []screening.Hit{
		{Country: "IR", Severity: screening.SeveritySanctioned, Reason: "Iran (UN/OFAC comprehensive sanctions)", TxCount: 2},
	}
	_, _, err := s.Score(context.Background(),
		[]domain.PreprocessedTransaction{ptx(100)},
		testBaseline(), testProfile(), testCompliance(), hits)
	require.NoError(t, err)

	prompt := client.lastPrompt()
	assert.Contains(t, prompt, "## Watchlist Screening")
	assert.Contains(t, prompt, "IR (sanctioned)")
}
