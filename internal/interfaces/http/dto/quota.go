package dto

import (
	"time"

	"theme-gen-ai-api/internal/application/quota"
)

// QuotaStatusResponse 额度状态响应
type QuotaStatusResponse struct {
	ActorID   string    `json:"actor_id"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	IsPremium bool      `json:"is_premium"`
	ResetAt   time.Time `json:"reset_at"`
}

// ToQuotaStatusResponse 转换额度状态
func ToQuotaStatusResponse(actorID string, s *quota.QuotaStatus) *QuotaStatusResponse {
	if s == nil {
		return nil
	}
	return &QuotaStatusResponse{
		ActorID:   actorID,
		Limit:     s.Limit,
		Used:      s.Used,
		Remaining: s.Remaining,
		Unlimited: s.Unlimited,
		IsPremium: s.IsPremium,
		ResetAt:   s.ResetAt,
	}
}

// UpgradeQuotaRequest 升级额度请求，DailyLimit 为 0 使用高级档位默认值，-1 表示不限
type UpgradeQuotaRequest struct {
	DailyLimit int `json:"daily_limit" binding:"gte=-1"`
}
