package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/storeadmin/internal/records"
)

var (
	ErrMissingOrder = errors.New("missing_service_order")
	ErrMissingSale  = errors.New("missing_sale")
)

const dateLayout = "2006-01-02 15:04"

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) ServiceOrderReceipt(ctx context.Context, store Store, order *records.ServiceOrder) (io.Reader, error) {
	if order == nil {
		return nil, ErrMissingOrder
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newDocument()
	letterhead(m, store)

	m.AddRow(12,
		text.NewCol(8, fmt.Sprintf("Service order #%06d", order.Number), props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Status: "+statusLabel(order.Status), props.Text{
			Size:  10,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Customer", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(order.CustomerName, props.Text{Top: 5, Size: 9}),
			text.New(order.CustomerPhone, props.Text{Top: 9, Size: 9}),
		),
		col.New(6).Add(
			text.New("Received: "+formatTime(order.CreatedAt), props.Text{Size: 9, Align: align.Right}),
			text.New("Delivered: "+formatTimePtr(order.DeliveredAt), props.Text{Top: 5, Size: 9, Align: align.Right}),
			text.New("Technician: "+dash(order.Technician), props.Text{Top: 9, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(2, line.NewCol(12))

	device := order.Device
	if order.Brand != "" || order.Model != "" {
		device = fmt.Sprintf("%s (%s %s)", order.Device, order.Brand, order.Model)
	}
	detailRow(m, "Device", device)
	detailRow(m, "Serial number", dash(order.SerialNumber))
	detailRow(m, "Reported problem", order.Problem)
	detailRow(m, "Diagnosis", dash(order.Diagnosis))
	if order.Notes != "" {
		detailRow(m, "Notes", order.Notes)
	}

	m.AddRow(2, line.NewCol(12))

	totalRow(m, "Price", money(order.Price), false)
	totalRow(m, "Deposit", money(order.Deposit), false)
	totalRow(m, "Balance due", money(order.Price-order.Deposit), true)

	if order.WarrantyDays > 0 {
		m.AddRow(14,
			text.NewCol(12, fmt.Sprintf("Warranty: %d days from delivery.", order.WarrantyDays), props.Text{
				Size: 9,
				Top:  6,
			}),
		)
	}

	m.AddRow(30,
		col.New(6).Add(
			text.New("______________________________", props.Text{Top: 18, Size: 9, Align: align.Center}),
			text.New("Customer signature", props.Text{Top: 23, Size: 8, Align: align.Center}),
		),
		col.New(6).Add(
			text.New("______________________________", props.Text{Top: 18, Size: 9, Align: align.Center}),
			text.New(store.Name, props.Text{Top: 23, Size: 8, Align: align.Center}),
		),
	)

	return generate(m)
}

func (p *MarotoProvider) SaleReceipt(ctx context.Context, store Store, sale *records.Sale) (io.Reader, error) {
	if sale == nil {
		return nil, ErrMissingSale
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newDocument()
	letterhead(m, store)

	m.AddRow(12,
		text.NewCol(8, "Receipt", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, formatTime(sale.CreatedAt), props.Text{
			Size:  10,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(14,
		col.New(6).Add(
			text.New("Sale: "+sale.ID, props.Text{Size: 9}),
			text.New("Customer: "+dash(sale.CustomerName), props.Text{Top: 5, Size: 9}),
		),
		col.New(6).Add(
			text.New("Payment: "+dash(sale.PaymentMethod), props.Text{Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range sale.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		m.AddRow(8,
			text.NewCol(6, name, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.UnitPrice*float64(item.Quantity)), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	totalRow(m, "Subtotal", money(sale.Subtotal), false)
	if sale.Discount > 0 {
		label := "Discount"
		if sale.CouponCode != "" {
			label += " (" + sale.CouponCode + ")"
		}
		totalRow(m, label, "-"+money(sale.Discount), false)
	}
	totalRow(m, "Total", money(sale.Total), true)

	return generate(m)
}

func newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	return maroto.New(cfg)
}

func letterhead(m core.Maroto, store Store) {
	m.AddRow(10,
		text.NewCol(12, store.Name, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(16,
		col.New(8).Add(
			text.New(store.Address, props.Text{Size: 8}),
			text.New(store.Hours, props.Text{Top: 4, Size: 8}),
		),
		col.New(4).Add(
			text.New(store.Phone, props.Text{Size: 8, Align: align.Right}),
			text.New(store.Email, props.Text{Top: 4, Size: 8, Align: align.Right}),
		),
	)
}

func detailRow(m core.Maroto, label, value string) {
	m.AddRow(8,
		text.NewCol(3, label, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(9, value, props.Text{Size: 9}),
	)
}

func totalRow(m core.Maroto, label, value string, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, label, props.Text{Style: style, Size: 9}),
		text.NewCol(2, value, props.Text{Style: style, Size: 9, Align: align.Right}),
	)
}

func generate(m core.Maroto) (io.Reader, error) {
	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func statusLabel(s records.ServiceOrderStatus) string {
	if s == "" {
		return string(records.ServiceOrderReceived)
	}
	return string(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
