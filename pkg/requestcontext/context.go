// Package requestcontext provides transport-independent context accessors for
// request-scoped values. Middleware (or workers and tests) set values;
// services only read them, so service packages never import transport code.
//
// Usage in services (read values):
//
//	actor := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActorID(ctx, "admin-7")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	requestIDKey   struct{}
	serviceKey     struct{}
	requestTimeKey struct{}
)

// ActorID retrieves the acting user or operator identity from the context.
// Used to stamp CreatedBy/UpdatedBy and attribute domain events.
func ActorID(ctx context.Context) string {
	if actor, ok := ctx.Value(actorIDKey{}).(string); ok {
		return actor
	}
	return ""
}

// WithActorID injects the acting identity into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ServiceName retrieves the deployed service identity ("machines-service" or
// "commerce-service") from the context, when a caller has pinned one.
func ServiceName(ctx context.Context) string {
	if svc, ok := ctx.Value(serviceKey{}).(string); ok {
		return svc
	}
	return ""
}

// WithServiceName injects the deployed service identity.
func WithServiceName(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKey{}, service)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-request contexts (workers, CLI, tests that don't pin a
// clock). Pinning a time keeps every timestamp inside one unit of work equal.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
