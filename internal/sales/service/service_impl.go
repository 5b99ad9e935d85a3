package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/providers/pdf"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/sales/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxLines keeps a sale, its stock updates and the coupon update inside one atomic batch.
const maxLines = docstore.MaxBatchWrites - 2

type Params struct {
	fx.In

	Registry *records.Registry
	PDF      pdf.Provider        `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	reg      *records.Registry
	pdf      pdf.Provider
	auditSvc auditdomain.Service
	log      *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		reg:      p.Registry,
		pdf:      p.PDF,
		auditSvc: p.AuditSvc,
		log:      p.Log.Named("sales.service"),
	}
}

type line struct {
	productID string
	quantity  int
}

// Create records the sale and decrements stock of every sold product in one atomic batch. Stock is checked
// against a prior read while the decrement is applied at commit time, so racing sales can drive stock negative.
func (s *Service) Create(ctx context.Context, storeID string, req domain.CreateRequest) (*records.Sale, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, domain.ErrInvalidStore
	}

	sale := req.Sale
	sale.ID = ""
	records.Stamp(&sale, s.reg.Now(), true)
	if err := records.Validate(&sale); err != nil {
		return nil, err
	}

	lines := groupLines(sale.Items)
	if len(lines) > maxLines {
		return nil, fmt.Errorf("%w: %d distinct products", domain.ErrTooManyItems, len(lines))
	}

	products := make(map[string]*records.Product, len(lines))
	for _, l := range lines {
		product, err := s.reg.Products().Get(ctx, storeID, l.productID)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", l.productID, err)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductInactive, l.productID)
		}
		if product.Stock < l.quantity {
			return nil, fmt.Errorf("%w: %s has %d, %d requested", domain.ErrInsufficientStock, l.productID, product.Stock, l.quantity)
		}
		products[l.productID] = product
	}

	subtotal := 0.0
	for i := range sale.Items {
		item := &sale.Items[i]
		product := products[item.ProductID]
		if item.Name == "" {
			item.Name = product.Name
		}
		if item.UnitPrice == 0 {
			item.UnitPrice = product.Price
		}
		subtotal += item.UnitPrice * float64(item.Quantity)
	}
	sale.Subtotal = cents(subtotal)

	var coupon *records.Coupon
	if code := strings.TrimSpace(sale.CouponCode); code != "" {
		c, err := s.coupon(ctx, storeID, code)
		if err != nil {
			return nil, err
		}
		discount, err := s.discount(c, sale.Subtotal)
		if err != nil {
			return nil, err
		}
		coupon = c
		sale.CouponCode = c.Code
		sale.Discount = discount
	}
	sale.Discount = cents(math.Min(sale.Discount, sale.Subtotal))
	sale.Total = cents(sale.Subtotal - sale.Discount)

	id, create, err := s.reg.Sales().CreateWrite(storeID, &sale)
	if err != nil {
		return nil, err
	}
	writes := []docstore.Write{create}
	now := s.reg.Now().UTC()
	for _, l := range lines {
		w, err := s.reg.Products().UpdateWrite(storeID, l.productID, docstore.Data{
			"stock":      docstore.Increment(float64(-l.quantity)),
			"updated_at": now,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	if coupon != nil {
		w, err := s.reg.Coupons().UpdateWrite(storeID, coupon.ID, docstore.Data{
			"uses":       docstore.Increment(1),
			"updated_at": now,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	if err := s.reg.Sales().Commit(ctx, writes...); err != nil {
		return nil, err
	}
	sale.ID = id

	s.audit(ctx, storeID, "sale.create", id, map[string]any{
		"items":  len(sale.Items),
		"total":  sale.Total,
		"coupon": sale.CouponCode,
	})
	return &sale, nil
}

func (s *Service) Get(ctx context.Context, storeID, id string) (*records.Sale, error) {
	return s.reg.Sales().Get(ctx, storeID, id)
}

// Void deletes the sale and returns its quantities to stock. The sale is read inside the transaction, so a
// sale can only be voided once. Products deleted since the sale are skipped.
func (s *Service) Void(ctx context.Context, storeID, id string) error {
	ref, err := s.reg.Sales().Ref(storeID, id)
	if err != nil {
		return err
	}

	var voided *records.Sale
	err = s.reg.Sales().RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		voided = nil
		sale, err := s.reg.Sales().GetTx(ctx, tx, storeID, id)
		if err != nil {
			return err
		}

		now := s.reg.Now().UTC()
		var restock []docstore.Write
		for _, l := range groupLines(sale.Items) {
			if _, err := s.reg.Products().GetTx(ctx, tx, storeID, l.productID); err != nil {
				if errors.Is(err, docstore.ErrNotFound) {
					s.log.Warn("voided sale references a deleted product",
						zap.String("store_id", storeID),
						zap.String("sale_id", id),
						zap.String("product_id", l.productID),
					)
					continue
				}
				return err
			}
			w, err := s.reg.Products().UpdateWrite(storeID, l.productID, docstore.Data{
				"stock":      docstore.Increment(float64(l.quantity)),
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			restock = append(restock, w)
		}

		tx.Delete(ref)
		for _, w := range restock {
			tx.Update(w.Ref, w.Data)
		}
		voided = sale
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, storeID, "sale.void", id, map[string]any{"total": voided.Total})
	return nil
}

func (s *Service) Receipt(ctx context.Context, storeID, id string) (io.Reader, *records.Sale, error) {
	if s.pdf == nil {
		return nil, nil, domain.ErrReceiptDisabled
	}
	sale, err := s.reg.Sales().Get(ctx, storeID, id)
	if err != nil {
		return nil, nil, err
	}
	settings, err := s.reg.StoreSettings(ctx, storeID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.pdf.SaleReceipt(ctx, pdf.StoreFromSettings(storeID, settings), sale)
	if err != nil {
		return nil, nil, err
	}
	return doc, sale, nil
}

func (s *Service) coupon(ctx context.Context, storeID, code string) (*records.Coupon, error) {
	found, err := s.reg.Coupons().List(ctx, storeID, repository.ListOptions{
		Filters: []docstore.Filter{{Field: "code", Op: docstore.OpEqual, Value: code}},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 || !found[0].Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoupon, code)
	}
	return found[0], nil
}

func (s *Service) discount(c *records.Coupon, subtotal float64) (float64, error) {
	if c.ExpiresAt != nil && !s.reg.Now().Before(*c.ExpiresAt) {
		return 0, domain.ErrCouponExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return 0, domain.ErrCouponExhausted
	}
	if subtotal < c.MinPurchase {
		return 0, domain.ErrMinimumPurchase
	}
	switch c.Type {
	case "percent":
		return subtotal * c.Value / 100, nil
	case "fixed":
		return c.Value, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidCoupon, c.Type)
}

func (s *Service) audit(ctx context.Context, storeID, action, id string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		Action:     action,
		Collection: records.KindSales.Collection(),
		DocID:      id,
		Changes:    changes,
	}
	if err := s.auditSvc.AuditLog(ctx, storeID, entry); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// groupLines sums quantities per product in order of first appearance.
func groupLines(items []records.SaleItem) []line {
	index := make(map[string]int, len(items))
	out := make([]line, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, line{productID: item.ProductID, quantity: item.Quantity})
	}
	return out
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
