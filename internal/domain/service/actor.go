package service

import (
	"context"
	"strings"
)

// Actor 额度主体
type Actor struct {
	ID         string
	Role       string
	DailyLimit int
	IsPremium  bool
}

// ActorDirectory 身份服务端口，提供主体档位与额度
type ActorDirectory interface {
	Lookup(ctx context.Context, actorID string) (*Actor, error)
}

type actorCtxKey struct{}

// WithActor 将认证得到的主体放入上下文
func WithActor(ctx context.Context, actor *Actor) context.Context {
	if ctx == nil || actor == nil || strings.TrimSpace(actor.ID) == "" {
		return ctx
	}
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext 从上下文读取主体
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(actorCtxKey{}).(*Actor)
	return actor, ok && actor != nil
}
