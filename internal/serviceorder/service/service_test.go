package service

import (
	"context"
	"io"
	"testing"

	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	auditrepo "github.com/smallbiznis/storeadmin/internal/audit/repository"
	auditsvc "github.com/smallbiznis/storeadmin/internal/audit/service"
	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/providers/pdf"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/internal/serviceorder/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc   *Service
	store *docstore.Store
	audit auditdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	res := resolver.New(nil)
	reg := records.New(records.Params{Client: store, Resolver: res, Log: zap.NewNop()})
	audit := auditsvc.NewService(auditsvc.Params{Log: zap.NewNop(), Repo: auditrepo.Provide(reg)})
	svc := NewService(Params{
		Registry: reg,
		Counter:  counter.New(counter.Params{Client: store, Resolver: res, Log: zap.NewNop()}),
		PDF:      pdf.New(),
		AuditSvc: audit,
		Log:      zap.NewNop(),
	}).(*Service)
	return fixture{svc: svc, store: store, audit: audit}
}

func validOrder() records.ServiceOrder {
	return records.ServiceOrder{
		CustomerName: "Ana",
		Device:       "Phone",
		Problem:      "Does not charge",
		Price:        120,
		WarrantyDays: 90,
	}
}

func TestCreateNumbersOrdersPerStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, "B", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.Equal(t, int64(1), other.Number)
	assert.Equal(t, records.ServiceOrderReceived, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	stored, err := f.svc.Get(ctx, "A", second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Number)

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{StoreID: "A", Action: "service_order.create"})
	require.NoError(t, err)
	assert.Len(t, logs.AuditLogs, 2)
}

func TestCreateRejectsInvalidWithoutConsumingNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := validOrder()
	bad.Device = ""
	_, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: bad})
	var verr *records.ValidationError
	require.ErrorAs(t, err, &verr)

	order, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.Number)

	_, err = f.svc.Create(ctx, " ", domain.CreateRequest{Order: validOrder()})
	assert.ErrorIs(t, err, domain.ErrInvalidStore)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, "A", order.ID, "lost")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	updated, err := f.svc.UpdateStatus(ctx, "A", order.ID, records.ServiceOrderRepairing)
	require.NoError(t, err)
	assert.Equal(t, records.ServiceOrderRepairing, updated.Status)
	assert.Nil(t, updated.DeliveredAt)

	updated, err = f.svc.UpdateStatus(ctx, "A", order.ID, records.ServiceOrderDelivered)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)

	stored, err := f.svc.Get(ctx, "A", order.ID)
	require.NoError(t, err)
	assert.Equal(t, records.ServiceOrderDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)

	_, err = f.svc.UpdateStatus(ctx, "A", order.ID, records.ServiceOrderRepairing)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	_, err = f.svc.UpdateStatus(ctx, "A", "missing", records.ServiceOrderReady)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, "A", domain.CreateRequest{Order: validOrder()})
	require.NoError(t, err)

	doc, got, err := f.svc.Receipt(ctx, "A", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Number, got.Number)
	raw, err := io.ReadAll(doc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw[:4]))

	f.svc.pdf = nil
	_, _, err = f.svc.Receipt(ctx, "A", order.ID)
	assert.ErrorIs(t, err, domain.ErrReceiptDisabled)
}
