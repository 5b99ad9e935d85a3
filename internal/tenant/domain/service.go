package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/storeadmin/pkg/docstore"
)

const (
	DomainsCollection = "domains"
)

type CreateRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	// StoreID defaults to the slug of Name.
	StoreID   string   `json:"store_id" validate:"omitempty,max=63"`
	Admins    []string `json:"admins" validate:"dive,email"`
	Domain    string   `json:"domain" validate:"omitempty,fqdn"`
	CloneFrom string   `json:"clone_from"`
}

// CopyReport summarizes a clone or legacy migration.
type CopyReport struct {
	Collections map[string]int      `json:"collections"`
	Result      docstore.BulkResult `json:"result"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Tenant, *CopyReport, error)
	Get(ctx context.Context, storeID string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	// Delete removes the tenant record and its domain mappings. Records under the tenant are left in place.
	Delete(ctx context.Context, storeID string) error
	AddAdmin(ctx context.Context, storeID, email string) (*Tenant, error)
	RemoveAdmin(ctx context.Context, storeID, email string) (*Tenant, error)
	SetDomain(ctx context.Context, storeID, host string) (*Tenant, error)
	RemoveDomain(ctx context.Context, storeID string) (*Tenant, error)
	ResolveDomain(ctx context.Context, host string) (string, error)
	// MigrateLegacy copies the legacy root collections into the tenant. The legacy documents are kept.
	MigrateLegacy(ctx context.Context, storeID string, collections []string) (*CopyReport, error)
}

var (
	ErrInvalidStoreID   = errors.New("invalid_store_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidDomain    = errors.New("invalid_domain")
	ErrTenantExists     = errors.New("tenant_exists")
	ErrTenantNotFound   = errors.New("tenant_not_found")
	ErrDomainTaken      = errors.New("domain_taken")
	ErrDomainNotFound   = errors.New("domain_not_found")
	ErrLastAdmin        = errors.New("last_admin")
	ErrCloneSourceEmpty = errors.New("clone_source_not_found")
	ErrCopyIncomplete   = errors.New("copy_incomplete")
)
