// Package records defines the typed tenant-scoped records and the closed registry of kinds the admin panels
// and HTTP routes are generated from.
package records

import (
	"errors"
	"strings"
)

// Kind identifies one record collection. The set is closed; Parse rejects anything else.
type Kind string

const (
	KindProducts        Kind = "products"
	KindCategories      Kind = "categories"
	KindCustomers       Kind = "customers"
	KindSales           Kind = "sales"
	KindServiceOrders   Kind = "serviceOrders"
	KindEmployees       Kind = "employees"
	KindCoupons         Kind = "coupons"
	KindRaffles         Kind = "raffles"
	KindCosts           Kind = "costs"
	KindAuditLogs       Kind = "auditLogs"
	KindChatbot         Kind = "chatbot"
	KindChatbotVersions Kind = "chatbotVersions"
	KindKnowledgeBase   Kind = "knowledgeBase"
	KindFAQ             Kind = "faq"
	KindSettings        Kind = "settings"
)

var ErrUnknownKind = errors.New("unknown_kind")

// Spec describes how a kind is stored and exposed.
type Spec struct {
	Kind Kind
	// Ordered kinds carry a position field and support reorder.
	Ordered bool
	// ReadOnly kinds are written only by dedicated services.
	ReadOnly bool
	// ManagedCreate kinds are created by a dedicated service (numbering, stock) but edited generically.
	ManagedCreate bool
	// DefaultOrder is the list order when the caller gives none.
	DefaultOrder string
	DefaultDesc  bool
}

func (k Kind) Collection() string { return string(k) }

func (k Kind) String() string { return string(k) }

var specs = []Spec{
	{Kind: KindProducts, Ordered: true, DefaultOrder: "position"},
	{Kind: KindCategories, Ordered: true, DefaultOrder: "position"},
	{Kind: KindCustomers, DefaultOrder: "name"},
	{Kind: KindSales, ManagedCreate: true, DefaultOrder: "created_at", DefaultDesc: true},
	{Kind: KindServiceOrders, ManagedCreate: true, DefaultOrder: "number", DefaultDesc: true},
	{Kind: KindEmployees, DefaultOrder: "name"},
	{Kind: KindCoupons, DefaultOrder: "code"},
	{Kind: KindRaffles, DefaultOrder: "draw_date", DefaultDesc: true},
	{Kind: KindCosts, DefaultOrder: "date", DefaultDesc: true},
	{Kind: KindAuditLogs, ReadOnly: true, DefaultOrder: "created_at", DefaultDesc: true},
	{Kind: KindChatbot, ReadOnly: true},
	{Kind: KindChatbotVersions, ReadOnly: true, DefaultOrder: "version", DefaultDesc: true},
	{Kind: KindKnowledgeBase, DefaultOrder: "title"},
	{Kind: KindFAQ, Ordered: true, DefaultOrder: "position"},
	{Kind: KindSettings},
}

// Specs lists every kind in registry order.
func Specs() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

func Lookup(k Kind) (Spec, bool) {
	for _, s := range specs {
		if s.Kind == k {
			return s, true
		}
	}
	return Spec{}, false
}

// Parse accepts a kind name case-insensitively.
func Parse(raw string) (Kind, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range specs {
		if strings.EqualFold(string(s.Kind), raw) {
			return s.Kind, nil
		}
	}
	return "", ErrUnknownKind
}
