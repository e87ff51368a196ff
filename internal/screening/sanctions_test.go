package screening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

func batch(countries ...string) []domain.PreprocessedTransaction {
	out := make([]domain.PreprocessedTransaction, 0, len(countries))
	for _, c := range countries {
		out = append(out, domain.PreprocessedTransaction{
			RawTransaction: domain.RawTransaction{TransactionCountry: c},
		})
	}
	return out
}

func TestScreenCleanBatch(t *testing.T) {
	s := NewScreener(logger.NewNop())
	assert.Empty(t, s.Screen(batch("MT", "IT", "DE")))
	assert.Empty(t, s.Screen(nil))
}

func TestScreenSanctionedCountry(t *testing.T) {
	s := NewScreener(logger.NewNop())

	hits := s.Screen(batch("MT", "IR", "IR"))
	require.Len(t, hits, 1)
	assert.Equal(t, "IR", hits[0].Country)
	assert.Equal(t, SeveritySanctioned, hits[0].Severity)
	assert.Equal(t, 2, hits[0].TxCount)
	assert.Contains(t, hits[0].Reason, "Iran")
}

func TestScreenHighRiskCountry(t *testing.T) {
	s := NewScreener(logger.NewNop())

	hits := s.Screen(batch("NG"))
	require.Len(t, hits, 1)
	assert.Equal(t, SeverityHighRisk, hits[0].Severity)
}

func TestScreenSanctionedBeforeHighRisk(t *testing.T) {
	s := NewScreener(logger.NewNop())

	// High-risk country appears first in the batch, sanctioned hits
	// still lead the result.
	hits := s.Screen(batch("RU", "MT", "KP", "JM"))
	require.Len(t, hits, 3)
	assert.Equal(t, "KP", hits[0].Country)
	assert.Equal(t, SeveritySanctioned, hits[0].Severity)
	assert.Equal(t, "RU", hits[1].Country)
	assert.Equal(t, "JM", hits[2].Country)
}
