package quota

import (
	"context"

	"theme-gen-ai-api/internal/domain/service"
)

// ClaimsDirectory 基于认证声明的身份目录
// 上下文中存在同一主体时使用其声明，否则按免费档位处理。
type ClaimsDirectory struct {
	tiers Tiers
}

// NewClaimsDirectory 创建身份目录
func NewClaimsDirectory(tiers Tiers) *ClaimsDirectory {
	return &ClaimsDirectory{tiers: tiers}
}

func (d *ClaimsDirectory) Lookup(ctx context.Context, actorID string) (*service.Actor, error) {
	if actor, ok := service.ActorFromContext(ctx); ok && actor.ID == actorID {
		out := *actor
		if out.DailyLimit == 0 {
			out.DailyLimit = d.tiers.Free
			if out.IsPremium {
				out.DailyLimit = d.tiers.Premium
			}
		}
		return &out, nil
	}
	return &service.Actor{ID: actorID, DailyLimit: d.tiers.Free}, nil
}
