package auditctx

import "context"

// Actor describes who issued a request and from where. Services read it when
// writing audit entries.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
	RequestID string
}

type actorContextKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// WithUser returns a context whose actor is identified as userID, keeping any
// connection details already present.
func WithUser(ctx context.Context, userID string) context.Context {
	actor, _ := FromContext(ctx)
	actor.UserID = userID
	return WithActor(ctx, actor)
}
