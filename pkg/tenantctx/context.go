// Package tenantctx carries the active store and acting admin through request contexts.
package tenantctx

import (
	"context"
	"strings"
)

type keyType string

const (
	StoreIDKey keyType = "store_id"
	ActorKey   keyType = "actor"
)

// WithStoreID scopes ctx to a store. An empty id selects the legacy root collections.
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, StoreIDKey, strings.TrimSpace(storeID))
}

// StoreID returns the scoped store id; ok is false when the context was never scoped.
func StoreID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(StoreIDKey).(string)
	return id, ok
}

func WithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ActorKey, strings.ToLower(strings.TrimSpace(email)))
}

func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(ActorKey).(string)
	return actor
}
