package domain

import (
	"context"
	"errors"
	"io"

	"github.com/smallbiznis/storeadmin/internal/records"
)

// CounterName is the per-store sequence that numbers service orders.
const CounterName = "serviceOrders"

type CreateRequest struct {
	Order records.ServiceOrder
}

type Service interface {
	Create(ctx context.Context, storeID string, req CreateRequest) (*records.ServiceOrder, error)
	Get(ctx context.Context, storeID, id string) (*records.ServiceOrder, error)
	UpdateStatus(ctx context.Context, storeID, id string, status records.ServiceOrderStatus) (*records.ServiceOrder, error)
	Receipt(ctx context.Context, storeID, id string) (io.Reader, *records.ServiceOrder, error)
}

var (
	ErrInvalidStore    = errors.New("invalid_store")
	ErrInvalidStatus   = errors.New("invalid_service_order_status")
	ErrAlreadyClosed   = errors.New("service_order_closed")
	ErrReceiptDisabled = errors.New("receipt_disabled")
)
