// Package resolver maps logical collection names to tenant-scoped document store paths.
//
// A non-empty store id roots every collection under tenants/{storeID}. An empty store id addresses the legacy
// root collection of the same name; that path predates multi-tenancy and is still read by migration tooling.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TenantsCollection is the root collection holding tenant records and their subcollections.
const TenantsCollection = "tenants"

var ErrInvalidReference = docstore.ErrInvalidReference

var Module = fx.Module("resolver",
	fx.Provide(New),
)

// Resolver is pure: it performs no I/O and holds no per-call state.
type Resolver struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("resolver")}
}

// Collection never fails; malformed names surface when the store validates the reference.
func (r *Resolver) Collection(name, storeID string) docstore.CollectionRef {
	name = strings.Trim(strings.TrimSpace(name), "/")
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return docstore.Collection(name)
	}
	return docstore.Collection(TenantsCollection).Doc(storeID).Collection(name)
}

// Document resolves a single record. Blank ids and ids containing "/" are rejected so a caller can never
// address the collection itself or escape into another tenant's subtree.
func (r *Resolver) Document(name, docID, storeID string) (docstore.DocumentRef, error) {
	id := strings.TrimSpace(docID)
	if id == "" || strings.Contains(id, "/") {
		r.log.Warn("rejected document reference",
			zap.String("collection", name),
			zap.String("store_id", storeID),
			zap.String("doc_id", docID),
		)
		return docstore.DocumentRef{}, fmt.Errorf("%w: document id %q in collection %q", ErrInvalidReference, docID, name)
	}
	return r.Collection(name, storeID).Doc(id), nil
}

// Tenant is the tenant record itself, tenants/{storeID}.
func (r *Resolver) Tenant(storeID string) (docstore.DocumentRef, error) {
	return r.Document(TenantsCollection, storeID, "")
}

// IsLegacy reports whether a collection ref points at the pre-tenant root.
func IsLegacy(ref docstore.CollectionRef) bool {
	_, nested := ref.Parent()
	return !nested
}

// IsInvalidReference is a convenience for callers that only need the classification.
func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}
