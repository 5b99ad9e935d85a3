package domain

import (
	"context"
	"errors"
	"io"

	"github.com/smallbiznis/storeadmin/internal/records"
)

type CreateRequest struct {
	Sale records.Sale
}

type Service interface {
	Create(ctx context.Context, storeID string, req CreateRequest) (*records.Sale, error)
	Get(ctx context.Context, storeID, id string) (*records.Sale, error)
	Void(ctx context.Context, storeID, id string) error
	Receipt(ctx context.Context, storeID, id string) (io.Reader, *records.Sale, error)
}

var (
	ErrInvalidStore      = errors.New("invalid_store")
	ErrTooManyItems      = errors.New("too_many_items")
	ErrProductInactive   = errors.New("product_inactive")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrInvalidCoupon     = errors.New("invalid_coupon")
	ErrCouponExpired     = errors.New("coupon_expired")
	ErrCouponExhausted   = errors.New("coupon_exhausted")
	ErrMinimumPurchase   = errors.New("coupon_minimum_purchase")
	ErrReceiptDisabled   = errors.New("receipt_disabled")
)
