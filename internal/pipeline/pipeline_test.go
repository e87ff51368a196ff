package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/judgment"
)

// fakeJudge replays scripted responses in order. An exhausted script
// behaves like an unreachable capability.
type fakeJudge struct {
	mu      sync.Mutex
	replies []judgeReply
	prompts []string
}

type judgeReply struct {
	text string
	err  error
}

func (f *fakeJudge) Judge(ctx context.Context, systemInstruction, prompt string, structured bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "", &judgment.CapabilityError{Op: "judge", Err: errors.New("capability offline")}
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

func (f *fakeJudge) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeJudge) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// deadJudge always fails with a CapabilityError.
func deadJudge() *fakeJudge { return &fakeJudge{} }

func scriptedJudge(texts ...string) *fakeJudge {
	f := &fakeJudge{}
	for _, txt := range texts {
		f.replies = append(f.replies, judgeReply{text: txt})
	}
	return f
}

func testProfile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:              "user_test_001",
		FullName:            "Test User",
		Age:                 35,
		Country:             "MT",
		Occupation:          "software engineer",
		IncomeLevel:         domain.IncomeMedium,
		KYCStatus:           domain.KYCVerified,
		RiskProfile:         domain.TierLow,
		HistoricalCountries: []string{"MT", "IT", "DE"},
	}
}

func testBaseline() *domain.UserBaseline {
	return &domain.UserBaseline{
		UserID:           "user_test_001",
		AvgTxAmountUSD:   100,
		AvgDailyTotalUSD: 300,
		AvgTxPerDay:      3,
		StdDevAmount:     30,
		NormalHourRange:  [2]int{9, 18},
	}
}

func testCompliance() *domain.JurisdictionCompliance {
	points := func(v float64) *float64 { return &v }
	return &domain.JurisdictionCompliance{
		Jurisdiction:     "Malta",
		JurisdictionCode: "MT",
		CurrentVersion:   "v1",
		Rulebook: domain.Rulebook{
			AmountBased:        []string{"Large transactions require source-of-funds documentation"},
			FrequencyBased:     []string{"Burst activity requires review"},
			LocationBased:      []string{"Non-reputable jurisdictions require enhanced monitoring"},
			BehaviouralPattern: []string{"Profile deviations must be investigated"},
			RiskScore: domain.ScoringPolicy{
				Range: "0-100",
				Rules: []domain.RuleEntry{
					{Category: "amount", Rule: "Single transaction exceeds 5x baseline average", Points: points(50)},
				},
				Capping: "min(risk_score, 100)",
			},
			RiskBands: map[string]string{
				"HIGH":   "freeze account",
				"MEDIUM": "enhanced monitoring",
				"LOW":    "periodic review",
				"CLEAN":  "no action",
			},
		},
	}
}
