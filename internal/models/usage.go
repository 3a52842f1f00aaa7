package models

// UserUsageLimit is a per-user counter against one metered feature of the
// active plan. Used stays in [0, Limit]; counters are rewritten from the
// plan's allowances when a membership activates or renews.
type UserUsageLimit struct {
	BaseModel
	UserID  string `gorm:"not null;uniqueIndex:ux_usage_user_feature,priority:1" json:"user_id"`
	Feature string `gorm:"type:varchar(100);not null;uniqueIndex:ux_usage_user_feature,priority:2" json:"feature"`
	Used    int    `gorm:"default:0" json:"used"`
	Limit   int    `gorm:"column:quota;default:0" json:"limit"`
}

func (UserUsageLimit) TableName() string {
	return "user_usage_limits"
}

// Remaining reports how many units are left, floored at zero.
func (u *UserUsageLimit) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}
