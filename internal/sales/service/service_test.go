package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/providers/pdf"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/internal/sales/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc *Service
	reg *records.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	reg := records.New(records.Params{Client: store, Resolver: resolver.New(nil), Log: zap.NewNop()})
	svc := NewService(Params{Registry: reg, PDF: pdf.New(), Log: zap.NewNop()}).(*Service)
	return fixture{svc: svc, reg: reg}
}

func (f fixture) product(t *testing.T, storeID, id string, stock int, price float64) {
	t.Helper()
	_, err := f.reg.Products().Create(context.Background(), storeID, &records.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  price,
		Stock:  stock,
		Active: true,
	})
	require.NoError(t, err)
}

func (f fixture) stock(t *testing.T, storeID, id string) int {
	t.Helper()
	p, err := f.reg.Products().Get(context.Background(), storeID, id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateDecrementsStockAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 5, 10)
	f.product(t, "A", "p2", 1, 25.5)

	sale, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p1", Quantity: 1},
		},
		PaymentMethod: "cash",
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, 55.5, sale.Subtotal)
	assert.Equal(t, 55.5, sale.Total)
	assert.Equal(t, "Product p1", sale.Items[0].Name)

	assert.Equal(t, 2, f.stock(t, "A", "p1"))
	assert.Equal(t, 0, f.stock(t, "A", "p2"))

	stored, err := f.svc.Get(ctx, "A", sale.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 3)
}

func TestCreateRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 5, 10)
	f.product(t, "A", "p2", 1, 10)

	_, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
	}})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, f.stock(t, "A", "p1"))

	sales, err := f.reg.Sales().List(ctx, "A", repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateRejectsUnknownProductAndEmptySale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{{ProductID: "ghost", Quantity: 1}},
	}})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = f.svc.Create(ctx, "A", domain.CreateRequest{})
	var verr *records.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Create(ctx, "", domain.CreateRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidStore)
}

func TestCreateAppliesCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 10, 50)

	_, err := f.reg.Coupons().Create(ctx, "A", &records.Coupon{ID: "c1", Code: "TEN", Type: "percent", Value: 10, MaxUses: 1, Active: true})
	require.NoError(t, err)

	sale, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items:      []records.SaleItem{{ProductID: "p1", Quantity: 2}},
		CouponCode: "TEN",
	}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, sale.Subtotal)
	assert.Equal(t, 10.0, sale.Discount)
	assert.Equal(t, 90.0, sale.Total)

	coupon, err := f.reg.Coupons().Get(ctx, "A", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.Uses)

	_, err = f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items:      []records.SaleItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "TEN",
	}})
	assert.ErrorIs(t, err, domain.ErrCouponExhausted)

	_, err = f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items:      []records.SaleItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "NOPE",
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidCoupon)
}

func TestCouponRules(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Hour)

	_, err := f.svc.discount(&records.Coupon{Type: "fixed", Value: 5, ExpiresAt: &past}, 100)
	assert.ErrorIs(t, err, domain.ErrCouponExpired)

	_, err = f.svc.discount(&records.Coupon{Type: "fixed", Value: 5, MinPurchase: 200}, 100)
	assert.ErrorIs(t, err, domain.ErrMinimumPurchase)

	d, err := f.svc.discount(&records.Coupon{Type: "fixed", Value: 5}, 100)
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)
}

func TestVoidRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 3, 10)
	f.product(t, "A", "p2", 3, 10)

	sale, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	}})
	require.NoError(t, err)
	require.NoError(t, f.reg.Products().Delete(ctx, "A", "p2"))

	require.NoError(t, f.svc.Void(ctx, "A", sale.ID))
	assert.Equal(t, 3, f.stock(t, "A", "p1"))
	_, err = f.svc.Get(ctx, "A", sale.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestConcurrentVoidRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 5, 10)

	sale, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{{ProductID: "p1", Quantity: 2}},
	}})
	require.NoError(t, err)
	require.Equal(t, 3, f.stock(t, "A", "p1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.Void(ctx, "A", sale.ID)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 5, f.stock(t, "A", "p1"))
}

func TestVoidUnknownSale(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Void(context.Background(), "A", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSaleReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "A", "p1", 3, 10)

	sale, err := f.svc.Create(ctx, "A", domain.CreateRequest{Sale: records.Sale{
		Items: []records.SaleItem{{ProductID: "p1", Quantity: 1}},
	}})
	require.NoError(t, err)

	doc, _, err := f.svc.Receipt(ctx, "A", sale.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(doc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestGroupLines(t *testing.T) {
	got := groupLines([]records.SaleItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	assert.Equal(t, []line{{productID: "b", quantity: 4}, {productID: "a", quantity: 2}}, got)
}
