package pdf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	return raw
}

func TestServiceOrderReceipt(t *testing.T) {
	delivered := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	order := &records.ServiceOrder{
		ID:           "so-1",
		Number:       42,
		CustomerName: "Ana",
		Device:       "Phone",
		Brand:        "Acme",
		Model:        "X1",
		Problem:      "Broken screen",
		Status:       records.ServiceOrderDelivered,
		Price:        300,
		Deposit:      100,
		WarrantyDays: 90,
		DeliveredAt:  &delivered,
	}
	order.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	store := StoreFromSettings("store-a", &records.Settings{StoreName: "Store A", WhatsApp: "+55 11 99999-0000"})
	r, err := New().ServiceOrderReceipt(context.Background(), store, order)
	require.NoError(t, err)

	raw := readAll(t, r)
	assert.True(t, len(raw) > 4)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestSaleReceipt(t *testing.T) {
	sale := &records.Sale{
		ID: "sale-1",
		Items: []records.SaleItem{
			{ProductID: "p1", Name: "Case", Quantity: 2, UnitPrice: 10},
			{ProductID: "p2", Quantity: 1, UnitPrice: 5},
		},
		Subtotal:   25,
		Discount:   5,
		Total:      20,
		CouponCode: "OFF5",
	}

	r, err := New().SaleReceipt(context.Background(), StoreFromSettings("store-a", nil), sale)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(readAll(t, r)[:4]))
}

func TestReceiptRequiresRecord(t *testing.T) {
	p := New()
	_, err := p.ServiceOrderReceipt(context.Background(), Store{}, nil)
	assert.ErrorIs(t, err, ErrMissingOrder)
	_, err = p.SaleReceipt(context.Background(), Store{}, nil)
	assert.ErrorIs(t, err, ErrMissingSale)
}

func TestStoreFromSettings(t *testing.T) {
	assert.Equal(t, "store-a", StoreFromSettings("store-a", nil).Name)
	assert.Equal(t, "store-a", StoreFromSettings("store-a", &records.Settings{StoreName: "  "}).Name)

	s := StoreFromSettings("store-a", &records.Settings{StoreName: "Shop", Email: "a@b.co", Address: "Main St"})
	assert.Equal(t, "Shop", s.Name)
	assert.Equal(t, "a@b.co", s.Email)
	assert.Equal(t, "Main St", s.Address)
}
