package shared

import "context"

// Actor identifies the authenticated user performing an operation.
// Authentication happens upstream; handlers receive the identity through
// request headers and thread it explicitly into every service call.
type Actor struct {
	ID       int64
	Name     string
	BranchID int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
