package platformconfig

// Keys of the platform_config table.
const (
	KeyPricing     = "pricing"
	KeyTiers       = "tiers"
	KeyCommissions = "commissions"
	KeyQA          = "qa"
	KeyRateLimits  = "rate_limits"
	KeySignup      = "signup"
)

// Keys lists every known config key in seed order.
var Keys = []string{KeyPricing, KeyTiers, KeyCommissions, KeySignup, KeyQA, KeyRateLimits}

type PriceTier struct {
	UpToMessage int   `json:"up_to_message"`
	PriceCents  int64 `json:"price_cents"`
}

type TypePricing struct {
	BaseCents  int64       `json:"base_cents"`
	MultiTurn  []PriceTier `json:"multi_turn,omitempty"`
	PerSegment bool        `json:"per_segment,omitempty"`
}

// PricingConfig maps task type to its price rule.
type PricingConfig map[string]TypePricing

type TierLevel struct {
	MinTasks      int     `json:"min_tasks"`
	MinCompletion float64 `json:"min_completion"`
	MaxCreditRate float64 `json:"max_credit_rate"`
	Commission    float64 `json:"commission"`
}

type TiersConfig struct {
	Levels map[string]TierLevel `json:"levels"`
}

type VolumeDiscount struct {
	MinTasks   int     `json:"min_tasks"`
	Commission float64 `json:"commission"`
}

type CommissionsConfig struct {
	Standard                  float64          `json:"standard"`
	Skill                     float64          `json:"skill"`
	Subscription              float64          `json:"subscription"`
	VolumeDiscounts           []VolumeDiscount `json:"volume_discounts"`
	FreezeWindowHours         float64          `json:"freeze_window_hours"`
	MinWithdrawalCents        int64            `json:"min_withdrawal_cents"`
	DailyWithdrawalLimitCents int64            `json:"daily_withdrawal_limit_cents"`
}

type SimilarityThresholds struct {
	Pass float64 `json:"pass"`
	Flag float64 `json:"flag"`
}

type SecondFailPenalty struct {
	DeductPct float64 `json:"deduct_pct"`
	Downgrade bool    `json:"downgrade"`
}

type ThirdFailPenalty struct {
	Ban           bool `json:"ban"`
	FreezeBalance bool `json:"freeze_balance"`
}

// PenaltyLadder is consumed by administrative review. Nothing in the engine
// applies it automatically.
type PenaltyLadder struct {
	FirstFail  string            `json:"first_fail"`
	SecondFail SecondFailPenalty `json:"second_fail"`
	ThirdFail  ThirdFailPenalty  `json:"third_fail"`
}

type QAConfig struct {
	SpotCheckRates       map[string]float64   `json:"spot_check_rates"`
	ShadowExecutionRate  float64              `json:"shadow_execution_rate"`
	SimilarityThresholds SimilarityThresholds `json:"similarity_thresholds"`
	Penalty              PenaltyLadder        `json:"penalty"`
}

// RateLimitRule holds the per-minute limits for one operation. Unset fields fall back.
type RateLimitRule struct {
	PerIPPerMin        *int `json:"per_ip_per_min,omitempty"`
	PerMin             *int `json:"per_min,omitempty"`
	EstablishedPerMin  *int `json:"established_per_min,omitempty"`
	NewPerMin          *int `json:"new_per_min,omitempty"`
	FingerprintPerHour *int `json:"fingerprint_per_hour,omitempty"`
}

// IPLimit is per_ip_per_min, else per_min, else 60.
func (r RateLimitRule) IPLimit() int {
	return firstSet(60, r.PerIPPerMin, r.PerMin)
}

// TokenLimit is established_per_min, else per_min, else 30.
func (r RateLimitRule) TokenLimit() int {
	return firstSet(30, r.EstablishedPerMin, r.PerMin)
}

// RateLimitsConfig maps operation name to its rule.
type RateLimitsConfig map[string]RateLimitRule

type SignupConfig struct {
	BuyerFreeCreditCents     int64   `json:"buyer_free_credit_cents"`
	FirstDepositBonusPct     float64 `json:"first_deposit_bonus_pct"`
	ReferralBuyerCreditCents int64   `json:"referral_buyer_credit_cents"`
	ReferralSellerPct        float64 `json:"referral_seller_pct"`
}

func firstSet(fallback int, vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return fallback
}
