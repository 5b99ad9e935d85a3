package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks actor (an admin email) against storeID. An empty storeID asks for a global capability.
	Authorize(ctx context.Context, actor, storeID, object, action string) error
	IsSuperAdmin(actor string) (bool, error)
	GrantSuperAdmin(actor string) error
	GrantStoreAdmin(actor, storeID string) error
	RevokeStoreAdmin(actor, storeID string) error
	// RevokeStore drops every grant scoped to storeID.
	RevokeStore(storeID string) error
	StoresFor(actor string) ([]string, error)
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidStore  = errors.New("invalid_store")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
