package shared

import "context"

// Actor identifies the authenticated caller of the API. A service
// account always has an AccountID; MemberID is set when the caller
// forwards the human operator it acts on behalf of.
type Actor struct {
	AccountID   int64
	AccountName string
	Admin       bool
	MemberID    *int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
