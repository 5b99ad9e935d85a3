package pdf

import (
	"context"
	"io"
	"strings"

	"github.com/smallbiznis/storeadmin/internal/records"
	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Store is the letterhead printed on every receipt.
type Store struct {
	ID      string
	Name    string
	Address string
	Phone   string
	Email   string
	Hours   string
}

// StoreFromSettings builds the letterhead from the tenant settings document. A nil settings falls back to the
// store id.
func StoreFromSettings(storeID string, settings *records.Settings) Store {
	store := Store{ID: storeID, Name: storeID}
	if settings == nil {
		return store
	}
	if name := strings.TrimSpace(settings.StoreName); name != "" {
		store.Name = name
	}
	store.Address = settings.Address
	store.Phone = settings.WhatsApp
	store.Email = settings.Email
	store.Hours = settings.Hours
	return store
}

type Provider interface {
	ServiceOrderReceipt(ctx context.Context, store Store, order *records.ServiceOrder) (io.Reader, error)
	SaleReceipt(ctx context.Context, store Store, sale *records.Sale) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) ServiceOrderReceipt(ctx context.Context, store Store, order *records.ServiceOrder) (io.Reader, error) {
	return nil, nil
}

func (p *NoOpProvider) SaleReceipt(ctx context.Context, store Store, sale *records.Sale) (io.Reader, error) {
	return nil, nil
}
