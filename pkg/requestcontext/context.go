// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them without importing net/http.
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, id.Actor{ID: studentID, Role: id.RoleStudent})
package requestcontext

import (
	"context"
	"time"

	id "scholarship/pkg/domain"
)

type (
	actorKey           struct{}
	clientIPKey        struct{}
	userAgentKey       struct{}
	clientSummaryKey   struct{}
	requestIDKey       struct{}
	requestTimeKey     struct{}
	expectedVersionKey struct{}
)

// -----------------------------------------------------------------------------
// Actor
// -----------------------------------------------------------------------------

// Actor returns the authenticated caller, or the zero Actor when unauthenticated.
func Actor(ctx context.Context) id.Actor {
	if a, ok := ctx.Value(actorKey{}).(id.Actor); ok {
		return a
	}
	return id.Actor{}
}

// WithActor injects the authenticated caller.
func WithActor(ctx context.Context, actor id.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// UserID is a shorthand for Actor(ctx).ID.
func UserID(ctx context.Context) id.UserID {
	return Actor(ctx).ID
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// ClientSummary returns the parsed "browser/os" description of the User-Agent.
func ClientSummary(ctx context.Context) string {
	if s, ok := ctx.Value(clientSummaryKey{}).(string); ok {
		return s
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// WithClientSummary injects a parsed User-Agent summary.
func WithClientSummary(ctx context.Context, summary string) context.Context {
	return context.WithValue(ctx, clientSummaryKey{}, summary)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ExpectedVersion returns the optimistic concurrency token supplied by the
// caller (HTTP If-Match). ok is false when the caller did not send one.
func ExpectedVersion(ctx context.Context) (version int64, ok bool) {
	version, ok = ctx.Value(expectedVersionKey{}).(int64)
	return version, ok
}

func WithExpectedVersion(ctx context.Context, version int64) context.Context {
	return context.WithValue(ctx, expectedVersionKey{}, version)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. The sweep uses it so every
// document in a batch is judged against the same instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
