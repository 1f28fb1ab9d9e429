package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated caller. Authentication itself happens
// upstream; the API trusts the identity the gateway injects per request.
type Actor struct {
	UserID string
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.UserID != ""
}
