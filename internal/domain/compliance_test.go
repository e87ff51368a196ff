package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNextVersion(t *testing.T) {
	cases := []struct {
		current string
		want    string
	}{
		{"v1", "v2"},
		{"v9", "v10"},
		{"v12", "v13"},
		{"", "v1"},
	}
	for _, tc := range cases {
		j := &JurisdictionCompliance{CurrentVersion: tc.current}
		assert.Equal(t, tc.want, j.NextVersion(), "current %q", tc.current)
	}
}

func TestJurisdictionName(t *testing.T) {
	assert.Equal(t, "Malta", JurisdictionName("MT"))
	assert.Equal(t, "UAE", JurisdictionName("AE"))
	assert.Equal(t, "Cayman Islands", JurisdictionName("KY"))
	assert.Equal(t, "XX", JurisdictionName("XX"))
}

func TestDraftIsOpen(t *testing.T) {
	d := &ComplianceDraft{ID: uuid.New(), Status: DraftPending}
	assert.True(t, d.IsOpen())

	now := time.Now()
	d.Status = DraftApproved
	d.ResolvedAt = &now
	assert.False(t, d.IsOpen())

	d.Status = DraftRejected
	assert.False(t, d.IsOpen())
}

func TestRulebookRuleCount(t *testing.T) {
	r := &Rulebook{
		AmountBased:        []string{"a", "b"},
		FrequencyBased:     []string{"c"},
		LocationBased:      nil,
		BehaviouralPattern: []string{"d", "e", "f"},
	}
	assert.Equal(t, 6, r.RuleCount())
}

func TestHasSeenCountry(t *testing.T) {
	p := &UserProfile{HistoricalCountries: []string{"MT", "IT", "DE"}}
	assert.True(t, p.HasSeenCountry("IT"))
	assert.False(t, p.HasSeenCountry("US"))
	assert.False(t, p.HasSeenCountry("it"))
}
