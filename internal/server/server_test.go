package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/live"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthz struct {
	deny bool
}

func (s *stubAuthz) Authorize(_ context.Context, actor, storeID, object, action string) error {
	if s.deny {
		return authorization.ErrForbidden
	}
	return nil
}

func (s *stubAuthz) IsSuperAdmin(actor string) (bool, error) { return !s.deny, nil }
func (s *stubAuthz) GrantSuperAdmin(actor string) error { return nil }
func (s *stubAuthz) GrantStoreAdmin(actor, storeID string) error { return nil }
func (s *stubAuthz) RevokeStoreAdmin(actor, storeID string) error { return nil }
func (s *stubAuthz) RevokeStore(storeID string) error { return nil }
func (s *stubAuthz) StoresFor(actor string) ([]string, error) { return []string{"A"}, nil }

type stubTenants struct {
	mu      sync.Mutex
	tenants map[string]bool
	domains map[string]string
}

func (s *stubTenants) Create(context.Context, tenantdomain.CreateRequest) (*tenantdomain.Tenant, *tenantdomain.CopyReport, error) {
	return nil, nil, errors.New("not implemented")
}

func (s *stubTenants) Get(_ context.Context, storeID string) (*tenantdomain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tenants[storeID] {
		return nil, tenantdomain.ErrTenantNotFound
	}
	return &tenantdomain.Tenant{ID: storeID, Name: "Store " + storeID, Admins: []string{"owner@example.com"}}, nil
}

func (s *stubTenants) List(context.Context) ([]*tenantdomain.Tenant, error) { return nil, nil }

func (s *stubTenants) Delete(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tenants[storeID] {
		return tenantdomain.ErrTenantNotFound
	}
	delete(s.tenants, storeID)
	return nil
}

func (s *stubTenants) AddAdmin(context.Context, string, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrTenantNotFound
}

func (s *stubTenants) RemoveAdmin(context.Context, string, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrLastAdmin
}

func (s *stubTenants) SetDomain(context.Context, string, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrDomainTaken
}

func (s *stubTenants) RemoveDomain(context.Context, string) (*tenantdomain.Tenant, error) {
	return nil, tenantdomain.ErrTenantNotFound
}

func (s *stubTenants) ResolveDomain(_ context.Context, host string) (string, error) {
	if storeID, ok := s.domains[host]; ok {
		return storeID, nil
	}
	return "", tenantdomain.ErrDomainNotFound
}

func (s *stubTenants) MigrateLegacy(context.Context, string, []string) (*tenantdomain.CopyReport, error) {
	return nil, tenantdomain.ErrCloneSourceEmpty
}

type stubAudit struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (s *stubAudit) AuditLog(_ context.Context, _ string, entry auditdomain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type testServer struct {
	srv     *Server
	reg     *records.Registry
	authz   *stubAuthz
	audit   *stubAudit
	tenants *stubTenants
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	reg := records.New(records.Params{Client: store, Resolver: resolver.New(nil), Log: zap.NewNop()})
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	authz := &stubAuthz{}
	audit := &stubAudit{}
	tenants := &stubTenants{
		tenants: map[string]bool{"A": true, "B": true},
		domains: map[string]string{"shop.example.com": "A"},
	}
	srv := NewServer(ServerParams{
		Gin:       engine,
		Log:       zap.NewNop(),
		Registry:  reg,
		TenantSvc: tenants,
		AuthzSvc:  authz,
		AuditSvc:  audit,
	})
	return &testServer{srv: srv, reg: reg, authz: authz, audit: audit, tenants: tenants}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActor, "Owner@Example.com")
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestActorHeaderRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	req = httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req.Header.Set(HeaderActor, "not-an-email")
	rec = httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/me", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "owner@example.com", me.Email)
	assert.True(t, me.SuperAdmin)
	assert.Equal(t, []string{"A"}, me.Stores)
}

func TestForbiddenWhenAuthorizerDenies(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.deny = true

	rec := ts.do(http.MethodGet, "/admin/stores/A/records/products", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
}

func TestRecordCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/stores/A/records/products", `{"name":"iPhone 13","price":2999.9,"stock":4,"active":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created records.Product
	decodeData(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "iPhone 13", created.Name)

	rec = ts.do(http.MethodGet, "/admin/stores/A/records/products/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPatch, "/admin/stores/A/records/products/"+created.ID, `{"stock":7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched records.Product
	decodeData(t, rec, &patched)
	assert.Equal(t, 7, patched.Stock)
	assert.Equal(t, "iPhone 13", patched.Name)

	rec = ts.do(http.MethodGet, "/admin/stores/A/records/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []records.Product
	decodeData(t, rec, &list)
	assert.Len(t, list, 1)

	rec = ts.do(http.MethodGet, "/admin/stores/B/records/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	decodeData(t, rec, &list)
	assert.Empty(t, list)

	rec = ts.do(http.MethodDelete, "/admin/stores/A/records/products/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/stores/A/records/products/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"products.create", "products.update", "products.delete"}, ts.audit.actions())
}

func TestRecordCreateValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/stores/A/records/products", `{"price":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	assert.NotEmpty(t, payload.Errors)
	assert.Empty(t, ts.audit.actions())
}

func TestRecordListFilter(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"name":"a","price":1,"stock":0}`,
		`{"name":"b","price":1,"stock":5}`,
	} {
		rec := ts.do(http.MethodPost, "/admin/stores/A/records/products", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(http.MethodGet, "/admin/stores/A/records/products?filter=stock:gt:0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []records.Product
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)

	rec = ts.do(http.MethodGet, "/admin/stores/A/records/products?filter=stock:between:0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSalesHaveNoGenericWrites(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/stores/A/records/sales", `{"items":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/admin/stores/A/records/auditLogs/x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorder(t *testing.T) {
	ts := newTestServer(t)

	var ids []string
	for _, name := range []string{"first", "second"} {
		rec := ts.do(http.MethodPost, "/admin/stores/A/records/categories", `{"name":"`+name+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var c records.Category
		decodeData(t, rec, &c)
		ids = append(ids, c.ID)
	}

	body := `{"ids":["` + ids[1] + `","` + ids[0] + `"]}`
	rec := ts.do(http.MethodPost, "/admin/stores/A/records/categories/reorder", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Result bulkResultResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Result.Writes)
	assert.Equal(t, resp.Result.Chunks, resp.Result.Committed)

	rec = ts.do(http.MethodGet, "/admin/stores/A/records/categories", "")
	var list []records.Category
	decodeData(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)

	rec = ts.do(http.MethodPost, "/admin/stores/A/records/categories/reorder", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantErrorsMapToStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/stores/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/stores/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tenant tenantdomain.Tenant
	decodeData(t, rec, &tenant)
	assert.Equal(t, "A", tenant.ID)

	rec = ts.do(http.MethodPut, "/admin/stores/A/domain", `{"domain":"shop.example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodDelete, "/admin/stores/A/admins/owner@example.com", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "last_admin", payload.Errors[0].Code)
}

func TestStoreRoutesRejectUnknownStore(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/stores/ghost/records/products", `{"name":"Case","price":10,"stock":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodPost, "/admin/stores/ghost/sales", `{"items":[{"product_id":"p1","quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	products, err := ts.reg.Products().List(context.Background(), "ghost", repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestWriteAfterDeleteTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/admin/stores/A/records/products", `{"name":"Case","price":10,"stock":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodDelete, "/admin/stores/A", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/stores/A/records/products", `{"name":"Cable","price":5,"stock":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/admin/stores/A/records/products", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownStoreStaysForbiddenWhenDenied(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.deny = true

	rec := ts.do(http.MethodGet, "/admin/stores/ghost/records/products", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func storefrontGet(ts *testServer, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestStorefrontResolvesHost(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	visibleID, err := ts.reg.Products().Create(ctx, "A", &records.Product{Name: "visible", Active: true, Position: 1})
	require.NoError(t, err)
	hiddenID, err := ts.reg.Products().Create(ctx, "A", &records.Product{Name: "hidden", Active: false})
	require.NoError(t, err)
	_, err = ts.reg.Products().Create(ctx, "B", &records.Product{Name: "other store", Active: true})
	require.NoError(t, err)

	rec := storefrontGet(ts, "Shop.Example.com:443", "/storefront/products")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []records.Product
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, visibleID, list[0].ID)

	rec = storefrontGet(ts, "shop.example.com", "/storefront/products/"+hiddenID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = storefrontGet(ts, "unknown.example.com", "/storefront/products")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorefrontInfoWithoutSettings(t *testing.T) {
	ts := newTestServer(t)

	rec := storefrontGet(ts, "shop.example.com", "/storefront/store")
	require.Equal(t, http.StatusOK, rec.Code)
	var info storefrontInfo
	decodeData(t, rec, &info)
	assert.Equal(t, "A", info.StoreID)
	assert.Empty(t, info.StoreName)
}

func TestStorefrontChatbotHidesPrompt(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := storefrontGet(ts, "shop.example.com", "/storefront/chatbot")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := &records.ChatbotConfig{ID: records.ChatbotConfigID, Enabled: true, Name: "Ana", Greeting: "Oi!", SystemPrompt: "secret"}
	require.NoError(t, ts.reg.Chatbot().Set(ctx, "A", records.ChatbotConfigID, cfg))

	rec = storefrontGet(ts, "shop.example.com", "/storefront/chatbot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ana")
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestMapErrorFallsBackToKind(t *testing.T) {
	status, payload := mapError(errors.New("boom: details"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Type)

	status, payload = mapError(tenantdomain.ErrCopyIncomplete)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "copy_incomplete", payload.Type)

	status, _ = mapError(authorization.ErrInvalidActor)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestParseLiveKinds(t *testing.T) {
	kinds, err := parseLiveKinds("")
	require.NoError(t, err)
	assert.Equal(t, []records.Kind{records.KindProducts}, kinds)

	kinds, err = parseLiveKinds("products, FAQ,products")
	require.NoError(t, err)
	assert.Equal(t, []records.Kind{records.KindProducts, records.KindFAQ}, kinds)

	_, err = parseLiveKinds("invoices")
	assert.ErrorIs(t, err, records.ErrUnknownKind)
}

func TestPendingUpdatesKeepsNewestPerKind(t *testing.T) {
	p := newPendingUpdates()
	p.push(live.Update{Kind: records.KindProducts, Items: 1})
	p.push(live.Update{Kind: records.KindFAQ, Items: 2})
	p.push(live.Update{Kind: records.KindProducts, Items: 3})

	<-p.notify
	got := p.drain()
	require.Len(t, got, 2)
	assert.Equal(t, records.KindProducts, got[0].Kind)
	assert.Equal(t, 3, got[0].Items)
	assert.Equal(t, records.KindFAQ, got[1].Kind)
	assert.Empty(t, p.drain())
}

func TestWriteLiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeLiveUpdate(&buf, live.Update{StoreID: "A", Kind: records.KindFAQ, Items: []string{"x"}}))
	assert.True(t, strings.HasPrefix(buf.String(), "event: faq\ndata: "))
	assert.True(t, strings.HasSuffix(buf.String(), "\n\n"))

	buf.Reset()
	require.NoError(t, writeLiveUpdate(&buf, live.Update{StoreID: "A", Kind: records.KindFAQ, Err: errors.New("listen failed")}))
	assert.Contains(t, buf.String(), "event: error\n")
	assert.Contains(t, buf.String(), `"error":"internal_error"`)
}
