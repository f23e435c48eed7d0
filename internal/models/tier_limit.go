package models

// TierLimit is one row of the tier-config collection spec.md §6
// names ("tier-config collection in the store"): the per-(tier,
// feature) quota limit and reset cadence, editable by an admin rather
// than hard-coded, per spec.md §9's redesign note on replacing
// language-level hot-path caches with explicit, invalidatable ones.
type TierLimit struct {
	Tier    string `gorm:"primaryKey;column:tier;type:varchar(20)" json:"tier"`
	Feature string `gorm:"primaryKey;column:feature;type:varchar(32)" json:"feature"`
	Limit   int    `gorm:"column:quota_limit;not null" json:"limit"` // -1 means unlimited
	Period  string `gorm:"column:period;type:varchar(10);not null" json:"period"`
}

func (TierLimit) TableName() string { return "tier_limits" }
