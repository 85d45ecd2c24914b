package domain

import (
	"context"
	"strings"
)

type actorKey struct{}

type actor struct {
	actorType ActorType
	actorID   string
}

// WithActor attaches the caller that audit entries are attributed to.
func WithActor(ctx context.Context, actorType ActorType, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorType == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{actorType: actorType, actorID: actorID})
}

func ActorFromContext(ctx context.Context) (ActorType, string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(actorKey{}).(actor); ok {
		return v.actorType, v.actorID
	}
	return "", ""
}
