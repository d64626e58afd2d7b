package entities

import "context"

type actorKey struct{}

// ContextWithActor attaches the acting user to ctx
func ContextWithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user stored by ContextWithActor
func ActorFromContext(ctx context.Context) (ActorContext, bool) {
	actor, ok := ctx.Value(actorKey{}).(ActorContext)
	return actor, ok
}
