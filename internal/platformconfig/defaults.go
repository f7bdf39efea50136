package platformconfig

import "github.com/openclaw/marketplace/internal/models"

// Rate-limited operations.
const (
	OpRegistration = "registration"
	OpWorkNext     = "work_next"
	OpTaskSubmit   = "task_submit"
	OpWorkSubmit   = "work_submit"
	OpDeposit      = "deposit"
	OpWithdrawal   = "withdrawal"
	OpBalanceCheck = "balance_check"
	OpTaskCheck    = "task_check"
	OpWorkerMe     = "worker_me"
)

func DefaultPricing() PricingConfig {
	return PricingConfig{
		"chat": {BaseCents: 2, MultiTurn: []PriceTier{
			{UpToMessage: 3, PriceCents: 2},
			{UpToMessage: 7, PriceCents: 5},
			{UpToMessage: 999, PriceCents: 10},
		}},
		"translate": {BaseCents: 1, PerSegment: true},
		"code":      {BaseCents: 5},
		"analyze":   {BaseCents: 20},
		"research":  {BaseCents: 50},
	}
}

func DefaultTiers() TiersConfig {
	return TiersConfig{Levels: map[string]TierLevel{
		models.TierNew:     {MinTasks: 0, MinCompletion: 0, MaxCreditRate: 1.0, Commission: 0.25},
		models.TierProven:  {MinTasks: 50, MinCompletion: 0.90, MaxCreditRate: 0.05, Commission: 0.20},
		models.TierTrusted: {MinTasks: 200, MinCompletion: 0.95, MaxCreditRate: 0.03, Commission: 0.15},
		models.TierElite:   {MinTasks: 1000, MinCompletion: 0.98, MaxCreditRate: 0.01, Commission: 0.10},
	}}
}

func DefaultCommissions() CommissionsConfig {
	return CommissionsConfig{
		Standard:     0.20,
		Skill:        0.15,
		Subscription: 0.15,
		VolumeDiscounts: []VolumeDiscount{
			{MinTasks: 500, Commission: 0.20},
			{MinTasks: 2000, Commission: 0.18},
			{MinTasks: 5000, Commission: 0.15},
		},
		FreezeWindowHours:         24,
		MinWithdrawalCents:        500,
		DailyWithdrawalLimitCents: 50000,
	}
}

func DefaultQA() QAConfig {
	return QAConfig{
		SpotCheckRates: map[string]float64{
			models.TierNew:        0.15,
			models.TierProven:     0.08,
			models.TierTrusted:    0.04,
			models.TierElite:      0.02,
			models.TierSuspicious: 0.30,
		},
		ShadowExecutionRate:  0.03,
		SimilarityThresholds: SimilarityThresholds{Pass: 0.70, Flag: 0.40},
		Penalty: PenaltyLadder{
			FirstFail:  "warning",
			SecondFail: SecondFailPenalty{DeductPct: 0.20, Downgrade: true},
			ThirdFail:  ThirdFailPenalty{Ban: true, FreezeBalance: true},
		},
	}
}

func DefaultRateLimits() RateLimitsConfig {
	return RateLimitsConfig{
		OpRegistration: {PerIPPerMin: intp(3)},
		OpWorkNext:     {PerIPPerMin: intp(30)},
		OpTaskSubmit:   {PerMin: intp(20)},
		OpWorkSubmit:   {PerMin: intp(30)},
		OpDeposit:      {PerMin: intp(10)},
		OpWithdrawal:   {PerMin: intp(5)},
		OpBalanceCheck: {PerMin: intp(30)},
		OpTaskCheck:    {PerMin: intp(30)},
		OpWorkerMe:     {PerMin: intp(20)},
	}
}

func DefaultSignup() SignupConfig {
	return SignupConfig{
		BuyerFreeCreditCents:     50,
		FirstDepositBonusPct:     0.20,
		ReferralBuyerCreditCents: 100,
		ReferralSellerPct:        0.05,
	}
}

// Defaults returns the seed document for every key.
func Defaults() map[string]any {
	return map[string]any{
		KeyPricing:     DefaultPricing(),
		KeyTiers:       DefaultTiers(),
		KeyCommissions: DefaultCommissions(),
		KeySignup:      DefaultSignup(),
		KeyQA:          DefaultQA(),
		KeyRateLimits:  DefaultRateLimits(),
	}
}

func intp(v int) *int { return &v }
