package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/cache"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authzStub struct {
	mu      sync.Mutex
	grants  map[string]bool
	revoked []string
}

func newAuthzStub() *authzStub { return &authzStub{grants: map[string]bool{}} }

func (a *authzStub) Authorize(context.Context, string, string, string, string) error { return nil }
func (a *authzStub) IsSuperAdmin(string) (bool, error) { return false, nil }
func (a *authzStub) GrantSuperAdmin(string) error { return nil }
func (a *authzStub) StoresFor(string) ([]string, error) { return nil, nil }

func (a *authzStub) GrantStoreAdmin(actor, storeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants[actor+"|"+storeID] = true
	return nil
}

func (a *authzStub) RevokeStoreAdmin(actor, storeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants, actor+"|"+storeID)
	return nil
}

func (a *authzStub) RevokeStore(storeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, storeID)
	return nil
}

func (a *authzStub) has(actor, storeID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grants[actor+"|"+storeID]
}

type fixture struct {
	svc     *Service
	store   *docstore.Store
	authz   *authzStub
	limiter *ratelimit.StoreLimiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	wizard := config.NewStaticWizardConfigHolder(config.DefaultWizardConfig())
	limiter := ratelimit.NewStoreLimiter(ratelimit.Params{
		Bucket: ratelimit.NewLocalBucket(),
		Lock:   ratelimit.NewLocalLocker(),
		Wizard: wizard,
		Log:    zap.NewNop(),
	})
	authz := newAuthzStub()
	svc := NewService(Params{
		Client:   store,
		Resolver: resolver.New(nil),
		Limiter:  limiter,
		Wizard:   wizard,
		Domains:  cache.NewDomainCache(),
		Authz:    authz,
		Log:      zap.NewNop(),
	}).(*Service)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return &fixture{svc: svc, store: store, authz: authz, limiter: limiter}
}

func TestCreateTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tenant, report, err := f.svc.Create(ctx, tenantdomain.CreateRequest{
		Name:   "Loja Celular Centro",
		Admins: []string{"Owner@Shop.com", "owner@shop.com", "b@shop.com"},
		Domain: "Centro.Example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, "loja-celular-centro", tenant.ID)
	assert.Equal(t, []string{"b@shop.com", "owner@shop.com"}, tenant.Admins)
	assert.Equal(t, "centro.example.com", tenant.Domain)
	assert.True(t, f.authz.has("owner@shop.com", "loja-celular-centro"))

	got, err := f.svc.Get(ctx, "loja-celular-centro")
	require.NoError(t, err)
	assert.Equal(t, "Loja Celular Centro", got.Name)

	storeID, err := f.svc.ResolveDomain(ctx, "centro.example.com:443")
	require.NoError(t, err)
	assert.Equal(t, "loja-celular-centro", storeID)

	_, _, err = f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "Loja Celular Centro"})
	assert.ErrorIs(t, err, tenantdomain.ErrTenantExists)

	_, _, err = f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "Other", Domain: "centro.example.com"})
	assert.ErrorIs(t, err, tenantdomain.ErrDomainTaken)
	_, err = f.svc.Get(ctx, "other")
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound, "failed create leaves nothing behind")
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: " "})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidName)

	_, _, err = f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "x", StoreID: "a/b"})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidStoreID)

	_, _, err = f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "x", CloneFrom: "ghost"})
	assert.ErrorIs(t, err, tenantdomain.ErrCloneSourceEmpty)
}

func TestCreateWithClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "Reference", Admins: []string{"a@x.com"}})
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, docstore.Doc("tenants/reference/settings/theme"), docstore.Data{
		"theme": map[string]any{"primary_color": "#112233"},
	}))
	require.NoError(t, f.store.Set(ctx, docstore.Doc("tenants/reference/faq/f1"), docstore.Data{"question": "q", "answer": "a"}))
	require.NoError(t, f.store.Set(ctx, docstore.Doc("tenants/reference/sales/s1"), docstore.Data{"total": 10}))

	_, report, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "Branch", CloneFrom: "reference"})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Collections["settings"])
	assert.Equal(t, 1, report.Collections["faq"])
	assert.Equal(t, 2, report.Result.Writes)

	snap, err := f.store.Get(ctx, docstore.Doc("tenants/branch/settings/theme"))
	require.NoError(t, err)
	color, _ := snap.Data.Lookup("theme.primary_color")
	assert.Equal(t, "#112233", color)

	_, err = f.store.Get(ctx, docstore.Doc("tenants/branch/sales/s1"))
	assert.ErrorIs(t, err, docstore.ErrNotFound, "operational data is not cloned")

	// no link remains between the copies
	require.NoError(t, f.store.Update(ctx, docstore.Doc("tenants/reference/settings/theme"), docstore.Data{"theme.primary_color": "#000000"}))
	snap, err = f.store.Get(ctx, docstore.Doc("tenants/branch/settings/theme"))
	require.NoError(t, err)
	color, _ = snap.Data.Lookup("theme.primary_color")
	assert.Equal(t, "#112233", color)
}

func TestDeleteDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "A", Admins: []string{"a@x.com"}, Domain: "a.example.com"})
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, docstore.Doc("tenants/a/products/p1"), docstore.Data{"name": "phone"}))
	_, err = f.svc.ResolveDomain(ctx, "a.example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "a"))

	_, err = f.svc.Get(ctx, "a")
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
	_, err = f.svc.ResolveDomain(ctx, "a.example.com")
	assert.ErrorIs(t, err, tenantdomain.ErrDomainNotFound, "cached mapping is invalidated")
	assert.Equal(t, []string{"a"}, f.authz.revoked)

	snap, err := f.store.Get(ctx, docstore.Doc("tenants/a/products/p1"))
	require.NoError(t, err, "child records survive tenant deletion")
	assert.Equal(t, "phone", snap.Data["name"])

	assert.ErrorIs(t, f.svc.Delete(ctx, "a"), tenantdomain.ErrTenantNotFound)
}

func TestAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "A", Admins: []string{"a@x.com"}})
	require.NoError(t, err)

	tenant, err := f.svc.AddAdmin(ctx, "a", "B@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, tenant.Admins)
	assert.True(t, f.authz.has("b@x.com", "a"))

	tenant, err = f.svc.AddAdmin(ctx, "a", "b@x.com")
	require.NoError(t, err)
	assert.Len(t, tenant.Admins, 2)

	tenant, err = f.svc.RemoveAdmin(ctx, "a", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com"}, tenant.Admins)
	assert.False(t, f.authz.has("a@x.com", "a"))

	_, err = f.svc.RemoveAdmin(ctx, "a", "b@x.com")
	assert.ErrorIs(t, err, tenantdomain.ErrLastAdmin)

	_, err = f.svc.AddAdmin(ctx, "a", "nope")
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidEmail)
	_, err = f.svc.AddAdmin(ctx, "missing", "c@x.com")
	assert.ErrorIs(t, err, tenantdomain.ErrTenantNotFound)
}

func TestDomains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B"} {
		_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: name})
		require.NoError(t, err)
	}

	_, err := f.svc.SetDomain(ctx, "a", "shop.example.com")
	require.NoError(t, err)
	_, err = f.svc.SetDomain(ctx, "b", "shop.example.com")
	assert.ErrorIs(t, err, tenantdomain.ErrDomainTaken)

	tenant, err := f.svc.SetDomain(ctx, "a", "new.example.com")
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", tenant.Domain)
	_, err = f.svc.ResolveDomain(ctx, "shop.example.com")
	assert.ErrorIs(t, err, tenantdomain.ErrDomainNotFound, "previous host is released")

	_, err = f.svc.SetDomain(ctx, "b", "shop.example.com")
	require.NoError(t, err)

	tenant, err = f.svc.RemoveDomain(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, tenant.Domain)
	_, err = f.svc.RemoveDomain(ctx, "a")
	assert.ErrorIs(t, err, tenantdomain.ErrDomainNotFound)

	_, err = f.svc.SetDomain(ctx, "a", "localhost")
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidDomain)
}

func TestListTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Alpha"} {
		_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: name})
		require.NoError(t, err)
	}
	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID)
}

func TestMigrateLegacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Create(ctx, tenantdomain.CreateRequest{Name: "A"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.Set(ctx, docstore.Doc(fmt.Sprintf("products/p%d", i)), docstore.Data{"name": fmt.Sprintf("phone %d", i)}))
	}
	require.NoError(t, f.store.Set(ctx, docstore.Doc("faq/f1"), docstore.Data{"question": "q"}))

	report, err := f.svc.MigrateLegacy(ctx, "a", []string{"products"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Collections["products"])

	reg := records.New(records.Params{Client: f.store, Resolver: resolver.New(nil), Log: zap.NewNop()})
	items, err := reg.Products().List(ctx, "a", repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	legacy, err := reg.Products().List(ctx, "", repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, legacy, 3, "legacy documents are kept")
	_, err = f.store.Get(ctx, docstore.Doc("tenants/a/faq/f1"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = f.svc.MigrateLegacy(ctx, "a", []string{"invoices"})
	assert.ErrorIs(t, err, records.ErrUnknownKind)

	release, err := f.limiter.LockStore(ctx, "a", "migrate")
	require.NoError(t, err)
	defer release()
	_, err = f.svc.MigrateLegacy(ctx, "a", nil)
	assert.True(t, errors.Is(err, ratelimit.ErrLocked))
}
