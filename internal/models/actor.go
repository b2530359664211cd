package models

import (
	"context"

	"github.com/nguyentranbao-ct/team-messaging/pkg/ctxval"
)

type actorKey struct{}

// WithActor records the authenticated user on ctx. Every messaging operation
// acts on behalf of this user.
func WithActor(ctx context.Context, userID string) context.Context {
	ctx = ctxval.Wrap(ctx)
	ctxval.Set(ctx, actorKey{}, userID)
	return ctx
}

func ActorFrom(ctx context.Context) (string, bool) {
	userID, ok := ctxval.Get[actorKey, string](ctx, actorKey{})
	return userID, ok && userID != ""
}
