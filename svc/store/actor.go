package store

import "context"

type actorKey struct{}

// WithActor records who a privileged operation is performed for, e.g.
// "user:<id>" or "system:auto-cancel".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}
