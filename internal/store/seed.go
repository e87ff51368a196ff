package store

import (
	"context"

	"github.com/banking/compliance-sentinel/internal/domain"
)

func points(v float64) *float64 { return &v }

var defaultRiskBands = map[string]string{
	"HIGH":   "Score 75-100: freeze account pending compliance review",
	"MEDIUM": "Score 50-74: enhanced monitoring and transaction review",
	"LOW":    "Score 25-49: flag for periodic review",
	"CLEAN":  "Score 0-24: no action required",
}

func defaultScoringPolicy() domain.ScoringPolicy {
	return domain.ScoringPolicy{
		Range: "0-100",
		Rules: []domain.RuleEntry{
			{Category: "amount", Rule: "Single transaction exceeds 5x baseline average", Points: points(50)},
			{Category: "amount", Rule: "Single transaction exceeds 3x baseline average", Points: points(35)},
			{Category: "amount", Rule: "Daily total exceeds 2x baseline daily average", Points: points(30)},
			{Category: "location", Rule: "Transaction from country never seen in history", Points: points(45)},
			{Category: "location", Rule: "Impossible travel speed between transactions", Points: points(50)},
			{Category: "frequency", Rule: "Daily transaction count exceeds 2x baseline", Points: points(35)},
		},
		Capping: "min(risk_score, 100)",
	}
}

// Seed loads demonstration users, baselines, jurisdictions, and staged
// regulations so the service runs without external storage.
func Seed(ctx context.Context, s Store) error {
	jurisdictions := []domain.JurisdictionCompliance{
		{
			Jurisdiction:     "Malta",
			JurisdictionCode: "MT",
			CurrentVersion:   "v1",
			OldRegulations: []domain.Regulation{
				{
					RegulationUpdateID: "MT-2018-VFA",
					UpdateTitle:        "Virtual Financial Assets Act",
					Summary:            "Licensing and conduct framework for virtual financial asset service providers operating in or from Malta.",
					DateEffective:      "2018-11-01",
				},
			},
			Rulebook: domain.Rulebook{
				AmountBased: []string{
					"Transactions above EUR 10,000 equivalent require source-of-funds documentation under the Prevention of Money Laundering Act",
					"Aggregated daily volume above 3x the customer baseline triggers enhanced due diligence",
				},
				FrequencyBased: []string{
					"More than 10 transactions per day for retail accounts requires review under FIAU Implementing Procedures",
				},
				LocationBased: []string{
					"Transactions originating from non-reputable jurisdictions require enhanced monitoring per MFSA guidance",
				},
				BehaviouralPattern: []string{
					"Deviations from the established customer profile must be investigated under PMLFTR Regulation 11",
				},
				RiskScore: defaultScoringPolicy(),
				RiskBands: cloneBands(),
			},
		},
		{
			Jurisdiction:     "UAE",
			JurisdictionCode: "AE",
			CurrentVersion:   "v1",
			OldRegulations: []domain.Regulation{
				{
					RegulationUpdateID: "AE-2020-AMLCFT",
					UpdateTitle:        "Cabinet Decision No. 10 of 2019 (AML/CFT)",
					Summary:            "Implementing regulation of the UAE AML law covering customer due diligence and suspicious transaction reporting.",
					DateEffective:      "2020-01-01",
				},
			},
			Rulebook: domain.Rulebook{
				AmountBased: []string{
					"Transactions above AED 55,000 require identity re-verification under Cabinet Decision No. 10",
				},
				FrequencyBased: []string{
					"Burst activity above the customer's established frequency baseline triggers a goAML review",
				},
				LocationBased: []string{
					"Cross-border activity involving FATF grey-listed jurisdictions requires enhanced due diligence",
				},
				BehaviouralPattern: []string{
					"Pattern breaks against the declared economic profile must be escalated to the compliance officer",
				},
				RiskScore: defaultScoringPolicy(),
				RiskBands: cloneBands(),
			},
		},
		{
			Jurisdiction:     "Cayman Islands",
			JurisdictionCode: "KY",
			CurrentVersion:   "v1",
			OldRegulations: []domain.Regulation{
				{
					RegulationUpdateID: "KY-2020-VASP",
					UpdateTitle:        "Virtual Asset (Service Providers) Act",
					Summary:            "Registration and supervision regime for virtual asset service providers in the Cayman Islands.",
					DateEffective:      "2020-10-31",
				},
			},
			Rulebook: domain.Rulebook{
				AmountBased: []string{
					"Transactions above USD 10,000 require beneficial ownership confirmation under the Anti-Money Laundering Regulations",
				},
				FrequencyBased: []string{
					"Sustained frequency above 2x the customer baseline requires CIMA notification assessment",
				},
				LocationBased: []string{
					"Activity from jurisdictions without equivalent AML regimes requires enhanced monitoring",
				},
				BehaviouralPattern: []string{
					"Unexplained changes in transaction behaviour must be documented per AMLR Part VII",
				},
				RiskScore: defaultScoringPolicy(),
				RiskBands: cloneBands(),
			},
		},
	}

	for i := range jurisdictions {
		if err := s.UpsertCompliance(ctx, &jurisdictions[i]); err != nil {
			return err
		}
	}

	staged := map[string]domain.Regulation{
		"MT": {
			RegulationUpdateID: "MT-2025-MICA-ALIGN",
			UpdateTitle:        "MiCA Alignment Amendment",
			Summary:            "Aligns the VFA framework with the EU Markets in Crypto-Assets Regulation, lowering the enhanced due diligence threshold to EUR 1,000 for transfers involving self-hosted wallets.",
			DateEffective:      "2026-01-01",
		},
		"AE": {
			RegulationUpdateID: "AE-2025-TRAVEL-RULE",
			UpdateTitle:        "Virtual Asset Travel Rule Guideline",
			Summary:            "Requires originator and beneficiary information for virtual asset transfers above AED 3,500 and real-time screening of counterparty VASPs.",
			DateEffective:      "2025-11-15",
		},
		"KY": {
			RegulationUpdateID: "KY-2025-SANDBOX-EXIT",
			UpdateTitle:        "Regulatory Sandbox Graduation Requirements",
			Summary:            "Imposes full AMLR compliance on graduating sandbox entities including transaction monitoring calibrated to customer baselines.",
			DateEffective:      "2025-12-01",
		},
	}
	for code, reg := range staged {
		if err := s.StageRegulation(ctx, code, reg); err != nil {
			return err
		}
	}

	profiles := []domain.UserProfile{
		{
			UserID: "user_mt_001", FullName: "Matteo Vella", Age: 34, Country: "MT",
			Occupation: "software engineer", IncomeLevel: domain.IncomeMedium,
			KYCStatus: domain.KYCVerified, RiskProfile: domain.TierLow,
			HistoricalCountries: []string{"MT", "IT", "DE"},
		},
		{
			UserID: "user_ae_001", FullName: "Layla Haddad", Age: 41, Country: "AE",
			Occupation: "import/export trader", IncomeLevel: domain.IncomeHigh,
			KYCStatus: domain.KYCVerified, RiskProfile: domain.TierMedium,
			HistoricalCountries: []string{"AE", "SA", "QA", "GB"},
		},
		{
			UserID: "user_ky_001", FullName: "Dwayne Ebanks", Age: 29, Country: "KY",
			Occupation: "fund administrator", IncomeLevel: domain.IncomeHigh,
			KYCStatus: domain.KYCPending, RiskProfile: domain.TierLow,
			HistoricalCountries: []string{"KY", "US", "JM"},
		},
	}
	for i := range profiles {
		if err := s.UpsertProfile(ctx, &profiles[i]); err != nil {
			return err
		}
	}

	baselines := []domain.UserBaseline{
		{UserID: "user_mt_001", AvgTxAmountUSD: 120.50, AvgDailyTotalUSD: 410.00, AvgTxPerDay: 3, StdDevAmount: 45.20, NormalHourRange: [2]int{8, 19}},
		{UserID: "user_ae_001", AvgTxAmountUSD: 850.00, AvgDailyTotalUSD: 2400.00, AvgTxPerDay: 4, StdDevAmount: 310.00, NormalHourRange: [2]int{7, 21}},
		{UserID: "user_ky_001", AvgTxAmountUSD: 430.75, AvgDailyTotalUSD: 980.00, AvgTxPerDay: 2, StdDevAmount: 150.40, NormalHourRange: [2]int{9, 17}},
	}
	for i := range baselines {
		if err := s.UpsertBaseline(ctx, &baselines[i]); err != nil {
			return err
		}
	}

	return nil
}

func cloneBands() map[string]string {
	out := make(map[string]string, len(defaultRiskBands))
	for k, v := range defaultRiskBands {
		out[k] = v
	}
	return out
}
