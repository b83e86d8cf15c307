package audit

import "context"

type actorKey struct{}

// Кто инициировал действие. Кладется в контекст HTTP-мидлварью.
type Actor struct {
	UserID    string
	IPAddress string
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom возвращает инициатора из контекста; для фоновых операций "system".
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{UserID: "system"}
}
