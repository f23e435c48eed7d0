package models

import "time"

// Subscription is the minimal entitlement record the ALE owns for
// tier resolution (spec.md §4.6) and trial-expiry processing (spec.md
// §6 "trial processing"). Subscription purchase/payment flows
// themselves are an out-of-scope external collaborator (spec.md §1) —
// this table only records the current entitlement state that
// collaborator writes, plus the admin override and trial-end fields
// the scheduled job and tier cascade read.
type Subscription struct {
	UserID             string     `gorm:"primaryKey;column:user_id;type:varchar(64)" json:"user_id"`
	PaidActive         bool       `gorm:"column:paid_active;not null;default:false" json:"paid_active"`
	PaidExpiresAt      *time.Time `gorm:"column:paid_expires_at" json:"paid_expires_at,omitempty"`
	TrialActive        bool       `gorm:"column:trial_active;not null;default:false" json:"trial_active"`
	TrialEndsAt        *time.Time `gorm:"column:trial_ends_at" json:"trial_ends_at,omitempty"`
	AdminOverride      bool       `gorm:"column:admin_override;not null;default:false" json:"admin_override"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Expired reports whether a previously-active trial has run past its
// end date as of now — the predicate the trial-processing job sweeps
// on.
func (s Subscription) Expired(now time.Time) bool {
	return s.TrialActive && s.TrialEndsAt != nil && now.After(*s.TrialEndsAt)
}
