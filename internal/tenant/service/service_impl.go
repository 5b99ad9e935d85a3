package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/cache"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// cloneCollections are copied from a reference tenant on create. Operational data (sales, customers) is not.
var cloneCollections = []string{
	records.KindSettings.Collection(),
	records.KindChatbot.Collection(),
	records.KindFAQ.Collection(),
	records.KindKnowledgeBase.Collection(),
	records.KindCategories.Collection(),
}

type Params struct {
	fx.In

	Client   docstore.Client
	Resolver *resolver.Resolver
	Limiter  *ratelimit.StoreLimiter
	Wizard   *config.WizardConfigHolder
	Domains  *cache.DomainCache
	Authz    authorization.Service `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	client   docstore.Client
	resolver *resolver.Resolver
	limiter  *ratelimit.StoreLimiter
	wizard   *config.WizardConfigHolder
	domains  *cache.DomainCache
	authz    authorization.Service
	log      *zap.Logger
	now      func() time.Time
}

func NewService(p Params) tenantdomain.Service {
	return &Service{
		client:   p.Client,
		resolver: p.Resolver,
		limiter:  p.Limiter,
		wizard:   p.Wizard,
		domains:  p.Domains,
		authz:    p.Authz,
		log:      p.Log.Named("tenant.service"),
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateRequest) (*tenantdomain.Tenant, *tenantdomain.CopyReport, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, tenantdomain.ErrInvalidName
	}
	if err := records.Validate(req); err != nil {
		return nil, nil, err
	}
	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = slug.Make(name)
	}
	if !slug.IsSlug(storeID) {
		return nil, nil, fmt.Errorf("%w: %q", tenantdomain.ErrInvalidStoreID, storeID)
	}
	admins, err := normalizeAdmins(req.Admins)
	if err != nil {
		return nil, nil, err
	}
	host := ""
	if strings.TrimSpace(req.Domain) != "" {
		if host, err = normalizeDomain(req.Domain); err != nil {
			return nil, nil, err
		}
	}
	source := strings.TrimSpace(req.CloneFrom)
	if source != "" {
		if _, err := s.Get(ctx, source); err != nil {
			if errors.Is(err, tenantdomain.ErrTenantNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", tenantdomain.ErrCloneSourceEmpty, source)
			}
			return nil, nil, err
		}
	}

	release, err := s.limiter.LockStore(ctx, storeID, "create")
	if err != nil {
		return nil, nil, err
	}
	defer release()

	tenantRef, err := s.resolver.Tenant(storeID)
	if err != nil {
		return nil, nil, err
	}
	tenant := &tenantdomain.Tenant{
		ID:         storeID,
		Name:       name,
		Admins:     admins,
		Domain:     host,
		ClonedFrom: source,
		CreatedBy:  tenantctx.Actor(ctx),
		CreatedAt:  s.now().UTC(),
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		if _, err := tx.Get(ctx, tenantRef); err == nil {
			return fmt.Errorf("%w: %s", tenantdomain.ErrTenantExists, storeID)
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		body, err := docstore.Normalize(tenant)
		if err != nil {
			return err
		}
		delete(body, "id")
		tx.Create(tenantRef, body)

		if host != "" {
			domainRef, err := s.domainRef(host)
			if err != nil {
				return err
			}
			if err := ensureDomainFree(ctx, tx, domainRef, storeID); err != nil {
				return err
			}
			tx.Set(domainRef, docstore.Data{"store_id": storeID, "created_at": tenant.CreatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if host != "" {
		s.domains.Invalidate(host)
	}
	for _, admin := range admins {
		s.grant(admin, storeID)
	}
	s.log.Info("tenant created",
		zap.String("store_id", storeID),
		zap.Int("admins", len(admins)),
		zap.String("cloned_from", source),
	)

	if source == "" {
		return tenant, nil, nil
	}
	report, err := s.copyCollections(ctx, source, storeID, cloneCollections)
	if err != nil {
		// the tenant stays and committed chunks are not rolled back
		s.log.Warn("tenant clone incomplete", zap.String("store_id", storeID), zap.String("source", source), zap.Error(err))
		return tenant, report, fmt.Errorf("%w: clone from %s: %w", tenantdomain.ErrCopyIncomplete, source, err)
	}
	return tenant, report, nil
}

func (s *Service) Get(ctx context.Context, storeID string) (*tenantdomain.Tenant, error) {
	ref, err := s.resolver.Tenant(storeID)
	if err != nil {
		return nil, err
	}
	snap, err := s.client.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", tenantdomain.ErrTenantNotFound, storeID)
	}
	if err != nil {
		return nil, err
	}
	return decodeTenant(snap)
}

func (s *Service) List(ctx context.Context) ([]*tenantdomain.Tenant, error) {
	snaps, err := s.client.Documents(ctx, docstore.Collection(resolver.TenantsCollection).Query().OrderBy("name", docstore.Asc))
	if err != nil {
		return nil, err
	}
	out := make([]*tenantdomain.Tenant, 0, len(snaps))
	for _, snap := range snaps {
		t, err := decodeTenant(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, storeID string) error {
	ref, err := s.resolver.Tenant(storeID)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, storeID); err != nil {
		return err
	}
	mappings, err := s.client.Documents(ctx, docstore.Collection(tenantdomain.DomainsCollection).Query().
		Where("store_id", docstore.OpEqual, storeID))
	if err != nil {
		return err
	}

	batch := s.client.Batch().Delete(ref)
	hosts := make([]string, 0, len(mappings))
	for _, m := range mappings {
		batch.Delete(m.Ref)
		hosts = append(hosts, m.Ref.ID())
	}
	if err := s.client.CommitBatch(ctx, batch); err != nil {
		return err
	}
	for _, host := range hosts {
		s.domains.Invalidate(host)
	}
	if s.authz != nil {
		if err := s.authz.RevokeStore(storeID); err != nil {
			s.log.Warn("revoke store grants failed", zap.String("store_id", storeID), zap.Error(err))
		}
	}
	s.log.Warn("tenant deleted; child records are not removed",
		zap.String("store_id", storeID),
		zap.Strings("hosts", hosts),
	)
	return nil
}

func (s *Service) AddAdmin(ctx context.Context, storeID, email string) (*tenantdomain.Tenant, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	t, err := s.mutate(ctx, storeID, func(t *tenantdomain.Tenant) (docstore.Data, error) {
		if slices.Contains(t.Admins, email) {
			return nil, nil
		}
		t.Admins = append(t.Admins, email)
		sort.Strings(t.Admins)
		return docstore.Data{"admins": t.Admins}, nil
	})
	if err != nil {
		return nil, err
	}
	s.grant(email, storeID)
	return t, nil
}

func (s *Service) RemoveAdmin(ctx context.Context, storeID, email string) (*tenantdomain.Tenant, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	t, err := s.mutate(ctx, storeID, func(t *tenantdomain.Tenant) (docstore.Data, error) {
		idx := slices.Index(t.Admins, email)
		if idx < 0 {
			return nil, nil
		}
		if len(t.Admins) == 1 {
			return nil, tenantdomain.ErrLastAdmin
		}
		t.Admins = slices.Delete(t.Admins, idx, idx+1)
		return docstore.Data{"admins": t.Admins}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.authz != nil {
		if err := s.authz.RevokeStoreAdmin(email, storeID); err != nil {
			s.log.Warn("revoke store admin failed", zap.String("store_id", storeID), zap.Error(err))
		}
	}
	return t, nil
}

// SetDomain points host at the store, replacing the store's previous host. A host owned by another store is
// rejected.
func (s *Service) SetDomain(ctx context.Context, storeID, host string) (*tenantdomain.Tenant, error) {
	host, err := normalizeDomain(host)
	if err != nil {
		return nil, err
	}
	domainRef, err := s.domainRef(host)
	if err != nil {
		return nil, err
	}
	tenantRef, err := s.resolver.Tenant(storeID)
	if err != nil {
		return nil, err
	}

	var previous string
	var out *tenantdomain.Tenant
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		t, err := getTenantTx(ctx, tx, tenantRef, storeID)
		if err != nil {
			return err
		}
		if err := ensureDomainFree(ctx, tx, domainRef, storeID); err != nil {
			return err
		}
		previous = t.Domain
		if previous != "" && previous != host {
			oldRef, err := s.domainRef(previous)
			if err != nil {
				return err
			}
			tx.Delete(oldRef)
		}
		tx.Set(domainRef, docstore.Data{"store_id": storeID, "created_at": s.now().UTC()})
		tx.Update(tenantRef, docstore.Data{"domain": host})
		t.Domain = host
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.domains.Invalidate(host)
	if previous != "" {
		s.domains.Invalidate(previous)
	}
	return out, nil
}

func (s *Service) RemoveDomain(ctx context.Context, storeID string) (*tenantdomain.Tenant, error) {
	tenantRef, err := s.resolver.Tenant(storeID)
	if err != nil {
		return nil, err
	}
	var host string
	var out *tenantdomain.Tenant
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		t, err := getTenantTx(ctx, tx, tenantRef, storeID)
		if err != nil {
			return err
		}
		if t.Domain == "" {
			return fmt.Errorf("%w: %s has no domain", tenantdomain.ErrDomainNotFound, storeID)
		}
		host = t.Domain
		domainRef, err := s.domainRef(host)
		if err != nil {
			return err
		}
		tx.Delete(domainRef)
		tx.Update(tenantRef, docstore.Data{"domain": docstore.DeleteField})
		t.Domain = ""
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.domains.Invalidate(host)
	return out, nil
}

func (s *Service) ResolveDomain(ctx context.Context, host string) (string, error) {
	normalized := cache.NormalizeHost(host)
	if normalized == "" {
		return "", tenantdomain.ErrInvalidDomain
	}
	if storeID, found := s.domains.Get(normalized); found {
		if storeID == "" {
			return "", fmt.Errorf("%w: %s", tenantdomain.ErrDomainNotFound, normalized)
		}
		return storeID, nil
	}

	ref, err := s.domainRef(normalized)
	if err != nil {
		return "", err
	}
	snap, err := s.client.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		s.domains.Set(normalized, "")
		return "", fmt.Errorf("%w: %s", tenantdomain.ErrDomainNotFound, normalized)
	}
	if err != nil {
		return "", err
	}
	var mapping tenantdomain.DomainMapping
	if err := snap.DataTo(&mapping); err != nil {
		return "", err
	}
	s.domains.Set(normalized, mapping.StoreID)
	return mapping.StoreID, nil
}

func (s *Service) MigrateLegacy(ctx context.Context, storeID string, collections []string) (*tenantdomain.CopyReport, error) {
	if _, err := s.Get(ctx, storeID); err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		for _, spec := range records.Specs() {
			collections = append(collections, spec.Kind.Collection())
		}
	}
	for _, c := range collections {
		if _, err := records.Parse(c); err != nil {
			return nil, fmt.Errorf("%w: %s", err, c)
		}
	}

	release, err := s.limiter.LockStore(ctx, storeID, "migrate")
	if err != nil {
		return nil, err
	}
	defer release()

	report, err := s.copyCollections(ctx, "", storeID, collections)
	if err != nil {
		return report, fmt.Errorf("%w: legacy migration: %w", tenantdomain.ErrCopyIncomplete, err)
	}
	s.log.Info("legacy data migrated",
		zap.String("store_id", storeID),
		zap.Any("collections", report.Collections),
		zap.Int("chunks", report.Result.Chunks),
	)
	return report, nil
}

// mutate applies fn to the tenant inside a transaction. A nil update means nothing changed.
func (s *Service) mutate(ctx context.Context, storeID string, fn func(*tenantdomain.Tenant) (docstore.Data, error)) (*tenantdomain.Tenant, error) {
	ref, err := s.resolver.Tenant(storeID)
	if err != nil {
		return nil, err
	}
	var out *tenantdomain.Tenant
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		t, err := getTenantTx(ctx, tx, ref, storeID)
		if err != nil {
			return err
		}
		update, err := fn(t)
		if err != nil {
			return err
		}
		if update != nil {
			tx.Update(ref, update)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Service) grant(email, storeID string) {
	if s.authz == nil {
		return
	}
	if err := s.authz.GrantStoreAdmin(email, storeID); err != nil {
		s.log.Warn("grant store admin failed", zap.String("store_id", storeID), zap.Error(err))
	}
}

func (s *Service) domainRef(host string) (docstore.DocumentRef, error) {
	ref, err := s.resolver.Document(tenantdomain.DomainsCollection, host, "")
	if err != nil {
		return docstore.DocumentRef{}, fmt.Errorf("%w: %s", tenantdomain.ErrInvalidDomain, host)
	}
	return ref, nil
}

func ensureDomainFree(ctx context.Context, tx *docstore.Transaction, ref docstore.DocumentRef, storeID string) error {
	snap, err := tx.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var mapping tenantdomain.DomainMapping
	if err := snap.DataTo(&mapping); err != nil {
		return err
	}
	if mapping.StoreID != storeID {
		return fmt.Errorf("%w: %s", tenantdomain.ErrDomainTaken, ref.ID())
	}
	return nil
}

func getTenantTx(ctx context.Context, tx *docstore.Transaction, ref docstore.DocumentRef, storeID string) (*tenantdomain.Tenant, error) {
	snap, err := tx.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", tenantdomain.ErrTenantNotFound, storeID)
	}
	if err != nil {
		return nil, err
	}
	return decodeTenant(snap)
}

func decodeTenant(snap *docstore.Snapshot) (*tenantdomain.Tenant, error) {
	var t tenantdomain.Tenant
	if err := snap.DataTo(&t); err != nil {
		return nil, err
	}
	t.ID = snap.Ref.ID()
	return &t, nil
}

func normalizeAdmins(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		email, err := normalizeEmail(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, email) {
			out = append(out, email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " /") {
		return "", fmt.Errorf("%w: %q", tenantdomain.ErrInvalidEmail, raw)
	}
	return email, nil
}

func normalizeDomain(raw string) (string, error) {
	host := cache.NormalizeHost(raw)
	if host == "" || strings.ContainsAny(host, "/ ") || !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: %q", tenantdomain.ErrInvalidDomain, raw)
	}
	return host, nil
}
