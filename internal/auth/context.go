package auth

import "context"

type ctxKey string

const actorKey ctxKey = "auth_actor"

// ContextWithActor attaches the authenticated principal to the context so
// downstream layers (handlers, audit logging) can identify who acted.
func ContextWithActor(ctx context.Context, email string, role Role) context.Context {
	return context.WithValue(ctx, actorKey, Actor{Email: email, Role: role})
}

// ActorFromContext extracts the authenticated principal, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
