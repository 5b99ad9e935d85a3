package service

import (
	"context"
	"io"
	"strings"

	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/providers/pdf"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/serviceorder/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var validStatuses = map[records.ServiceOrderStatus]struct{}{
	records.ServiceOrderReceived:   {},
	records.ServiceOrderDiagnosing: {},
	records.ServiceOrderAwaiting:   {},
	records.ServiceOrderRepairing:  {},
	records.ServiceOrderReady:      {},
	records.ServiceOrderDelivered:  {},
	records.ServiceOrderCancelled:  {},
}

type Params struct {
	fx.In

	Registry *records.Registry
	Counter  *counter.Counter
	PDF      pdf.Provider        `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
	Log      *zap.Logger
}

type Service struct {
	reg      *records.Registry
	counter  *counter.Counter
	pdf      pdf.Provider
	auditSvc auditdomain.Service
	log      *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		reg:      p.Registry,
		counter:  p.Counter,
		pdf:      p.PDF,
		auditSvc: p.AuditSvc,
		log:      p.Log.Named("serviceorder.service"),
	}
}

// Create validates the order before drawing a number so rejected input never consumes one.
func (s *Service) Create(ctx context.Context, storeID string, req domain.CreateRequest) (*records.ServiceOrder, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, domain.ErrInvalidStore
	}

	order := req.Order
	order.ID = ""
	order.DeliveredAt = nil
	if order.Status == "" {
		order.Status = records.ServiceOrderReceived
	}
	records.Stamp(&order, s.reg.Now(), true)
	if err := records.Validate(&order); err != nil {
		return nil, err
	}

	number, err := s.counter.Next(ctx, storeID, domain.CounterName)
	if err != nil {
		return nil, err
	}
	order.Number = number

	id, err := s.reg.ServiceOrders().Create(ctx, storeID, &order)
	if err != nil {
		s.log.Warn("service order number left unused",
			zap.String("store_id", storeID),
			zap.Int64("number", number),
			zap.Error(err),
		)
		return nil, err
	}
	order.ID = id

	s.audit(ctx, storeID, "service_order.create", id, map[string]any{
		"number":        number,
		"customer_name": order.CustomerName,
		"device":        order.Device,
	})
	return &order, nil
}

func (s *Service) Get(ctx context.Context, storeID, id string) (*records.ServiceOrder, error) {
	return s.reg.ServiceOrders().Get(ctx, storeID, id)
}

// UpdateStatus moves an order to status. Delivered stamps delivered_at; delivered and cancelled orders are final.
func (s *Service) UpdateStatus(ctx context.Context, storeID, id string, status records.ServiceOrderStatus) (*records.ServiceOrder, error) {
	if _, ok := validStatuses[status]; !ok {
		return nil, domain.ErrInvalidStatus
	}
	order, err := s.reg.ServiceOrders().Get(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if order.Status == records.ServiceOrderDelivered || order.Status == records.ServiceOrderCancelled {
		return nil, domain.ErrAlreadyClosed
	}

	now := s.reg.Now().UTC()
	fields := docstore.Data{
		"status":     string(status),
		"updated_at": now,
	}
	if status == records.ServiceOrderDelivered {
		fields["delivered_at"] = now
		order.DeliveredAt = &now
	}
	if err := s.reg.ServiceOrders().Update(ctx, storeID, id, fields); err != nil {
		return nil, err
	}

	previous := order.Status
	order.Status = status
	order.UpdatedAt = now
	s.audit(ctx, storeID, "service_order.status", id, map[string]any{
		"from": string(previous),
		"to":   string(status),
	})
	return order, nil
}

func (s *Service) Receipt(ctx context.Context, storeID, id string) (io.Reader, *records.ServiceOrder, error) {
	if s.pdf == nil {
		return nil, nil, domain.ErrReceiptDisabled
	}
	order, err := s.reg.ServiceOrders().Get(ctx, storeID, id)
	if err != nil {
		return nil, nil, err
	}
	store, err := s.letterhead(ctx, storeID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.pdf.ServiceOrderReceipt(ctx, store, order)
	if err != nil {
		return nil, nil, err
	}
	return doc, order, nil
}

func (s *Service) letterhead(ctx context.Context, storeID string) (pdf.Store, error) {
	settings, err := s.reg.StoreSettings(ctx, storeID)
	if err != nil {
		return pdf.Store{}, err
	}
	return pdf.StoreFromSettings(storeID, settings), nil
}

func (s *Service) audit(ctx context.Context, storeID, action, id string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		Action:     action,
		Collection: records.KindServiceOrders.Collection(),
		DocID:      id,
		Changes:    changes,
	}
	if err := s.auditSvc.AuditLog(ctx, storeID, entry); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
