package generator

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-sentinel/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
}

func testProfile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:              "user_test_001",
		FullName:            "Test User",
		Country:             "MT",
		IncomeLevel:         domain.IncomeMedium,
		HistoricalCountries: []string{"MT", "IT"},
	}
}

func TestGenerateDefaults(t *testing.T) {
	g := NewSeeded(1, fixedNow)

	batch := g.Generate(testProfile(), Options{})
	require.Len(t, batch, 5)

	for _, tx := range batch {
		assert.Equal(t, "user_test_001", tx.UserID)
		assert.Contains(t, []string{"MT", "IT"}, tx.TransactionCountry)
		assert.GreaterOrEqual(t, tx.TransactionAmount, 50.0, "medium income floor")
		assert.LessOrEqual(t, tx.TransactionAmount, 500.0, "medium income ceiling")
		assert.NotEmpty(t, tx.TransactionCcy)
		assert.Contains(t, []string{"deposit", "withdrawal", "transfer"}, tx.TransactionType)
		assert.NotEmpty(t, tx.TransactionCity)
	}
}

func TestGenerateTimestampsSingleDaySorted(t *testing.T) {
	g := NewSeeded(7, fixedNow)

	batch := g.Generate(testProfile(), Options{NumTransactions: 8})
	require.Len(t, batch, 8)

	timestamps := make([]string, 0, len(batch))
	for _, tx := range batch {
		ts, err := time.Parse(time.RFC3339, tx.Timestamp)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-01", ts.Format("2006-01-02"), "all on today's date")
		timestamps = append(timestamps, tx.Timestamp)
	}
	assert.True(t, sort.StringsAreSorted(timestamps), "chronological order")
}

func TestGenerateAmountBounds(t *testing.T) {
	g := NewSeeded(11, fixedNow)
	lo, hi := 2000.0, 3000.0

	batch := g.Generate(testProfile(), Options{NumTransactions: 20, MinAmount: &lo, MaxAmount: &hi})
	for _, tx := range batch {
		assert.GreaterOrEqual(t, tx.TransactionAmount, lo)
		assert.LessOrEqual(t, tx.TransactionAmount, hi)
	}
}

func TestGenerateAmountBoundsWithVariance(t *testing.T) {
	g := NewSeeded(13, fixedNow)
	lo, hi, variance := 100.0, 200.0, 500.0

	// Extreme variance still clamps into the requested window.
	batch := g.Generate(testProfile(), Options{NumTransactions: 30, MinAmount: &lo, MaxAmount: &hi, Variance: &variance})
	for _, tx := range batch {
		assert.GreaterOrEqual(t, tx.TransactionAmount, lo)
		assert.LessOrEqual(t, tx.TransactionAmount, hi)
	}
}

func TestGenerateCountryOverride(t *testing.T) {
	g := NewSeeded(3, fixedNow)

	batch := g.Generate(testProfile(), Options{NumTransactions: 6, Countries: []string{"KP"}})
	for _, tx := range batch {
		assert.Equal(t, "KP", tx.TransactionCountry)
		assert.Contains(t, []string{"Pyongyang", "Hamhung", "Chongjin"}, tx.TransactionCity)
	}
}

func TestGenerateUnknownCountryCity(t *testing.T) {
	g := NewSeeded(5, fixedNow)

	batch := g.Generate(testProfile(), Options{NumTransactions: 1, Countries: []string{"ZZ"}})
	require.Len(t, batch, 1)
	assert.Equal(t, "ZZ City", batch[0].TransactionCity)
}

func TestGenerateOverrides(t *testing.T) {
	g := NewSeeded(9, fixedNow)

	batch := g.Generate(testProfile(), Options{NumTransactions: 3, CurrencyOver: "BTC", CityOver: "Valletta"})
	for _, tx := range batch {
		assert.Equal(t, "BTC", tx.TransactionCcy)
		assert.Equal(t, "Valletta", tx.TransactionCity)
	}
}

func TestGenerateHomeCountryFallback(t *testing.T) {
	g := NewSeeded(17, fixedNow)
	profile := testProfile()
	profile.HistoricalCountries = nil

	batch := g.Generate(profile, Options{NumTransactions: 4})
	for _, tx := range batch {
		assert.Equal(t, "MT", tx.TransactionCountry)
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	a := NewSeeded(42, fixedNow).Generate(testProfile(), Options{NumTransactions: 5})
	b := NewSeeded(42, fixedNow).Generate(testProfile(), Options{NumTransactions: 5})
	assert.Equal(t, a, b)
}
