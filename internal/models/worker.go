package models

import (
	"time"

	"github.com/google/uuid"
)

// Worker reputation tiers, lowest first.
const (
	TierNew     = "new"
	TierProven  = "proven"
	TierTrusted = "trusted"
	TierElite   = "elite"

	// TierSuspicious is a QA sampling bucket, never a stored tier.
	TierSuspicious = "suspicious"
)

// TierLadder is the promotion order.
var TierLadder = []string{TierNew, TierProven, TierTrusted, TierElite}

const (
	PayoutPayPal = "paypal"
	PayoutSolana = "solana"
)

type ModelInfo struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Capabilities []string `json:"capabilities"`
}

type Payout struct {
	Method  string `json:"method"`
	Address string `json:"address"`
}

type Preferences struct {
	Accept    []string `json:"accept"`
	Reject    []string `json:"reject"`
	Languages []string `json:"languages"`
	MaxTokens int      `json:"max_tokens"`
	MinPrice  int64    `json:"min_price"`
}

type Shift struct {
	Name     string `json:"name"`
	Hours    [2]int `json:"hours"`
	Interval int    `json:"interval"`
}

type Schedule struct {
	Timezone string  `json:"timezone"`
	Shifts   []Shift `json:"shifts"`
}

type Limits struct {
	DailyMaxTasks int `json:"daily_max_tasks"`
	Concurrent    int `json:"concurrent"`
}

type Profile struct {
	Preferences Preferences `json:"preferences"`
	Schedule    Schedule    `json:"schedule"`
	Limits      Limits      `json:"limits"`
}

// DefaultProfile is assigned at registration.
func DefaultProfile() Profile {
	return Profile{
		Preferences: Preferences{Accept: []string{}, Reject: []string{}, Languages: []string{}},
		Schedule:    Schedule{Timezone: "UTC", Shifts: []Shift{}},
		Limits:      Limits{DailyMaxTasks: 100, Concurrent: 1},
	}
}

type Worker struct {
	ID                 uuid.UUID  `json:"id"`
	TokenHash          string     `json:"-"`
	WorkerType         string     `json:"worker_type"`
	ModelInfo          *ModelInfo `json:"model_info,omitempty"`
	Email              *string    `json:"email,omitempty"`
	Payout             *Payout    `json:"payout,omitempty"`
	Profile            Profile    `json:"profile"`
	Tier               string     `json:"tier"`
	TasksClaimed       int        `json:"tasks_claimed"`
	TasksCompleted     int        `json:"tasks_completed"`
	TasksExpired       int        `json:"tasks_expired"`
	ConsecutiveExpires int        `json:"consecutive_expires"`
	TotalEarned        int64      `json:"total_earned"`
	CreditRequests     int        `json:"credit_requests"`
	SpotPass           int        `json:"spot_pass"`
	SpotFail           int        `json:"spot_fail"`
	SuspendedUntil     *time.Time `json:"suspended_until,omitempty"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SuspendedAt reports whether the worker is blocked at now.
func (w *Worker) SuspendedAt(now time.Time) bool {
	return w.SuspendedUntil != nil && w.SuspendedUntil.After(now)
}

// Suspicious reports whether the worker has failed at least as many QA checks as it passed.
func (w *Worker) Suspicious() bool {
	return w.SpotFail > 0 && w.SpotFail >= w.SpotPass
}

type PreferencesPatch struct {
	Accept    *[]string `json:"accept,omitempty"`
	Reject    *[]string `json:"reject,omitempty"`
	Languages *[]string `json:"languages,omitempty"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
	MinPrice  *int64    `json:"min_price,omitempty"`
}

type SchedulePatch struct {
	Timezone *string  `json:"timezone,omitempty"`
	Shifts   *[]Shift `json:"shifts,omitempty"`
}

type LimitsPatch struct {
	DailyMaxTasks *int `json:"daily_max_tasks,omitempty"`
	Concurrent    *int `json:"concurrent,omitempty"`
}

// ProfilePatch is a partial profile update. Nil sub-objects and nil fields are left unchanged.
type ProfilePatch struct {
	Preferences *PreferencesPatch `json:"preferences,omitempty"`
	Schedule    *SchedulePatch    `json:"schedule,omitempty"`
	Limits      *LimitsPatch      `json:"limits,omitempty"`
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Preferences == nil && p.Schedule == nil && p.Limits == nil
}

// Apply merges p into profile field by field and returns the result.
func (p ProfilePatch) Apply(profile Profile) Profile {
	if pp := p.Preferences; pp != nil {
		if pp.Accept != nil {
			profile.Preferences.Accept = *pp.Accept
		}
		if pp.Reject != nil {
			profile.Preferences.Reject = *pp.Reject
		}
		if pp.Languages != nil {
			profile.Preferences.Languages = *pp.Languages
		}
		if pp.MaxTokens != nil {
			profile.Preferences.MaxTokens = *pp.MaxTokens
		}
		if pp.MinPrice != nil {
			profile.Preferences.MinPrice = *pp.MinPrice
		}
	}
	if sp := p.Schedule; sp != nil {
		if sp.Timezone != nil {
			profile.Schedule.Timezone = *sp.Timezone
		}
		if sp.Shifts != nil {
			profile.Schedule.Shifts = *sp.Shifts
		}
	}
	if lp := p.Limits; lp != nil {
		if lp.DailyMaxTasks != nil {
			profile.Limits.DailyMaxTasks = *lp.DailyMaxTasks
		}
		if lp.Concurrent != nil {
			profile.Limits.Concurrent = *lp.Concurrent
		}
	}
	return profile
}

// TierRequirements is the progress report toward the next tier.
type TierRequirements struct {
	MinTasks          int     `json:"min_tasks"`
	MinCompletionRate float64 `json:"min_completion_rate"`
	MaxCreditRate     float64 `json:"max_credit_rate"`
	TasksRemaining    int     `json:"tasks_remaining"`
	CompletionRateMet bool    `json:"completion_rate_met"`
	CreditRateMet     bool    `json:"credit_rate_met"`
}

// WorkerStats is returned alongside every claim and submission.
type WorkerStats struct {
	TasksCompleted    int               `json:"tasks_completed"`
	CompletionRate    float64           `json:"completion_rate"`
	CreditRequestRate float64           `json:"credit_request_rate"`
	Tier              string            `json:"tier"`
	NextTier          *string           `json:"next_tier"`
	NextTierRequires  *TierRequirements `json:"next_tier_requires"`
	EarningsToday     int64             `json:"earnings_today"`
	TotalEarned       int64             `json:"total_earned"`
}
