package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/apperror"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	reg := New(Params{Client: store, Resolver: resolver.New(nil), Log: zap.NewNop()})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return fixed }
	return reg
}

func TestParse(t *testing.T) {
	k, err := Parse("ServiceOrders")
	require.NoError(t, err)
	assert.Equal(t, KindServiceOrders, k)

	_, err = Parse("invoices")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEveryKindHasHandle(t *testing.T) {
	reg := newRegistry(t)
	for _, spec := range Specs() {
		h, err := reg.Handle(spec.Kind)
		require.NoError(t, err, spec.Kind)
		assert.Equal(t, spec, h.Spec())
	}
}

func TestCreateValidatesAndStamps(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	h, err := reg.Handle(KindProducts)
	require.NoError(t, err)

	_, err = h.Create(ctx, "A", []byte(`{"price": -1}`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Code
	}
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "gte", fields["price"])

	id, err := h.Create(ctx, "A", []byte(`{"name":"iPhone 13","price":2999.9,"stock":4}`))
	require.NoError(t, err)

	got, err := reg.Products().Get(ctx, "A", id)
	require.NoError(t, err)
	assert.Equal(t, "iPhone 13", got.Name)
	assert.Equal(t, reg.now(), got.CreatedAt)
}

func TestCreateMalformedBody(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Handle(KindCustomers)
	_, err := h.Create(context.Background(), "A", []byte(`{`))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestReadOnlyAndManagedKinds(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	audit, _ := reg.Handle(KindAuditLogs)
	_, err := audit.Create(ctx, "A", []byte(`{}`))
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Equal(t, apperror.KindPermissionDenied, apperror.KindOf(err))
	assert.ErrorIs(t, audit.Delete(ctx, "A", "x"), ErrReadOnly)

	sales, _ := reg.Handle(KindSales)
	_, err = sales.Create(ctx, "A", []byte(`{"items":[{"product_id":"p","quantity":1}]}`))
	assert.ErrorIs(t, err, ErrManagedCreate)
}

func TestPatchValidatesMergedRecord(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	h, _ := reg.Handle(KindCoupons)

	id, err := h.Create(ctx, "A", []byte(`{"code":"SAVE10","type":"percent","value":10}`))
	require.NoError(t, err)

	err = h.Patch(ctx, "A", id, docstore.Data{"type": "bogus"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	require.NoError(t, h.Patch(ctx, "A", id, docstore.Data{"value": 15, "id": "ignored"}))
	got, err := reg.Coupons().Get(ctx, "A", id)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Value)
	assert.Equal(t, "percent", got.Type)

	err = h.Patch(ctx, "A", "missing", docstore.Data{"value": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestReorder(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	h, _ := reg.Handle(KindFAQ)

	var ids []string
	for _, q := range []string{"a?", "b?", "c?"} {
		id, err := h.Create(ctx, "A", []byte(`{"question":"`+q+`","answer":"yes"}`))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	res, err := h.Reorder(ctx, "A", []string{ids[2], ids[0], ids[1]}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)

	listed, err := h.List(ctx, "A", repository.ListOptions{})
	require.NoError(t, err)
	items := listed.([]*FAQEntry)
	require.Len(t, items, 3)
	assert.Equal(t, "c?", items[0].Question)
	assert.Equal(t, "a?", items[1].Question)

	_, err = h.Reorder(ctx, "A", []string{ids[0], ids[0]}, 0)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	customers, _ := reg.Handle(KindCustomers)
	_, err = customers.Reorder(ctx, "A", ids, 0)
	assert.ErrorIs(t, err, ErrNotOrdered)
}

func TestValidateNestedFieldNames(t *testing.T) {
	err := Validate(&Sale{Items: []SaleItem{{ProductID: "", Quantity: 0}}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	assert.Contains(t, names, "items[0].product_id")
	assert.Contains(t, names, "items[0].quantity")
}
