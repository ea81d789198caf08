// Package entity 定义领域实体
package entity

import "time"

// UnlimitedQuota 表示不限额度
const UnlimitedQuota = -1

// ActorQuota 主体每日生成额度
type ActorQuota struct {
	ActorID    string `json:"actor_id" gorm:"type:varchar(64);primaryKey"`
	DailyLimit int    `json:"daily_limit" gorm:"not null"`
	UsedToday  int    `json:"used_today" gorm:"not null;default:0"`
	// Reserved 已准入但尚未确认的额度
	Reserved      int       `json:"reserved" gorm:"not null;default:0"`
	LastResetDate string    `json:"last_reset_date" gorm:"type:varchar(10);not null"`
	IsPremium     bool      `json:"is_premium" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ActorQuota) TableName() string {
	return "actor_quotas"
}

// Unlimited 是否不限额度
func (q *ActorQuota) Unlimited() bool {
	return q.DailyLimit == UnlimitedQuota
}

// Remaining 剩余可用额度，不限额度时返回 -1
func (q *ActorQuota) Remaining() int {
	if q.Unlimited() {
		return UnlimitedQuota
	}
	left := q.DailyLimit - q.UsedToday - q.Reserved
	if left < 0 {
		return 0
	}
	return left
}
