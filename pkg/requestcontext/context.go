// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets domain code consume the authenticated caller without
// pulling transport concerns in.
//
// The caller identity always comes from here, never from a request payload:
// authorization decisions must not trust caller-supplied identity fields.
package requestcontext

import (
	"context"
	"time"

	"attestry/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller retrieves the authenticated caller identity from the context.
// Returns the zero identity if not set.
func Caller(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(ContextKeyCaller).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}

// WithCaller injects a caller identity into the context.
func WithCaller(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, id)
}

// RequestID retrieves the correlation ID for the current request.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// Now returns the request time if one was injected, else the wall clock.
// Tests inject a fixed time with WithTime to make expiry math deterministic.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed request time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
