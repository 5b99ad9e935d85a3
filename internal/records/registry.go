package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/storeadmin/internal/apperror"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrReadOnly      = errors.New("kind_read_only")
	ErrManagedCreate = errors.New("kind_managed_create")
	ErrNotOrdered    = errors.New("kind_not_ordered")
)

var Module = fx.Module("records",
	fx.Provide(New),
)

// Handle is the type-erased view of one kind used by generic HTTP routes and live streams.
type Handle interface {
	Spec() Spec
	List(ctx context.Context, storeID string, opts repository.ListOptions) (any, error)
	Page(ctx context.Context, storeID string, opts repository.ListOptions, page pagination.Pagination) (any, *pagination.PageInfo, error)
	Get(ctx context.Context, storeID, id string) (any, error)
	Create(ctx context.Context, storeID string, body []byte) (string, error)
	Replace(ctx context.Context, storeID, id string, body []byte) error
	Patch(ctx context.Context, storeID, id string, fields docstore.Data) error
	Delete(ctx context.Context, storeID, id string) error
	Reorder(ctx context.Context, storeID string, ids []string, chunkSize int) (docstore.BulkResult, error)
	Subscribe(ctx context.Context, storeID string, opts repository.ListOptions, fn func(any, error)) (*docstore.Subscription, error)
}

type Params struct {
	fx.In

	Client   docstore.Client
	Resolver *resolver.Resolver
	Log      *zap.Logger
}

// Registry owns one typed repository per kind.
type Registry struct {
	products        *repository.Repository[Product]
	categories      *repository.Repository[Category]
	customers       *repository.Repository[Customer]
	sales           *repository.Repository[Sale]
	serviceOrders   *repository.Repository[ServiceOrder]
	employees       *repository.Repository[Employee]
	coupons         *repository.Repository[Coupon]
	raffles         *repository.Repository[Raffle]
	costs           *repository.Repository[Cost]
	auditLogs       *repository.Repository[AuditLogEntry]
	chatbot         *repository.Repository[ChatbotConfig]
	chatbotVersions *repository.Repository[ChatbotVersion]
	knowledgeBase   *repository.Repository[KnowledgeBaseItem]
	faq             *repository.Repository[FAQEntry]
	settings        *repository.Repository[Settings]

	handles map[Kind]Handle
	now     func() time.Time
}

func New(p Params) *Registry {
	log := p.Log.Named("records")
	r := &Registry{
		products:        repository.New[Product](p.Client, p.Resolver, KindProducts.Collection(), log),
		categories:      repository.New[Category](p.Client, p.Resolver, KindCategories.Collection(), log),
		customers:       repository.New[Customer](p.Client, p.Resolver, KindCustomers.Collection(), log),
		sales:           repository.New[Sale](p.Client, p.Resolver, KindSales.Collection(), log),
		serviceOrders:   repository.New[ServiceOrder](p.Client, p.Resolver, KindServiceOrders.Collection(), log),
		employees:       repository.New[Employee](p.Client, p.Resolver, KindEmployees.Collection(), log),
		coupons:         repository.New[Coupon](p.Client, p.Resolver, KindCoupons.Collection(), log),
		raffles:         repository.New[Raffle](p.Client, p.Resolver, KindRaffles.Collection(), log),
		costs:           repository.New[Cost](p.Client, p.Resolver, KindCosts.Collection(), log),
		auditLogs:       repository.New[AuditLogEntry](p.Client, p.Resolver, KindAuditLogs.Collection(), log),
		chatbot:         repository.New[ChatbotConfig](p.Client, p.Resolver, KindChatbot.Collection(), log),
		chatbotVersions: repository.New[ChatbotVersion](p.Client, p.Resolver, KindChatbotVersions.Collection(), log),
		knowledgeBase:   repository.New[KnowledgeBaseItem](p.Client, p.Resolver, KindKnowledgeBase.Collection(), log),
		faq:             repository.New[FAQEntry](p.Client, p.Resolver, KindFAQ.Collection(), log),
		settings:        repository.New[Settings](p.Client, p.Resolver, KindSettings.Collection(), log),
		now:             time.Now,
	}
	r.handles = map[Kind]Handle{
		KindProducts:        newHandle(r, KindProducts, r.products),
		KindCategories:      newHandle(r, KindCategories, r.categories),
		KindCustomers:       newHandle(r, KindCustomers, r.customers),
		KindSales:           newHandle(r, KindSales, r.sales),
		KindServiceOrders:   newHandle(r, KindServiceOrders, r.serviceOrders),
		KindEmployees:       newHandle(r, KindEmployees, r.employees),
		KindCoupons:         newHandle(r, KindCoupons, r.coupons),
		KindRaffles:         newHandle(r, KindRaffles, r.raffles),
		KindCosts:           newHandle(r, KindCosts, r.costs),
		KindAuditLogs:       newHandle(r, KindAuditLogs, r.auditLogs),
		KindChatbot:         newHandle(r, KindChatbot, r.chatbot),
		KindChatbotVersions: newHandle(r, KindChatbotVersions, r.chatbotVersions),
		KindKnowledgeBase:   newHandle(r, KindKnowledgeBase, r.knowledgeBase),
		KindFAQ:             newHandle(r, KindFAQ, r.faq),
		KindSettings:        newHandle(r, KindSettings, r.settings),
	}
	return r
}

func (r *Registry) Handle(k Kind) (Handle, error) {
	h, ok := r.handles[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return h, nil
}

// Now is the clock used to stamp records.
func (r *Registry) Now() time.Time { return r.now() }

func (r *Registry) Products() *repository.Repository[Product] { return r.products }
func (r *Registry) Categories() *repository.Repository[Category] { return r.categories }
func (r *Registry) Customers() *repository.Repository[Customer] { return r.customers }
func (r *Registry) Sales() *repository.Repository[Sale] { return r.sales }
func (r *Registry) ServiceOrders() *repository.Repository[ServiceOrder] { return r.serviceOrders }
func (r *Registry) Coupons() *repository.Repository[Coupon] { return r.coupons }
func (r *Registry) AuditLogs() *repository.Repository[AuditLogEntry] { return r.auditLogs }
func (r *Registry) Chatbot() *repository.Repository[ChatbotConfig] { return r.chatbot }
func (r *Registry) ChatbotVersions() *repository.Repository[ChatbotVersion] { return r.chatbotVersions }
func (r *Registry) KnowledgeBase() *repository.Repository[KnowledgeBaseItem] { return r.knowledgeBase }
func (r *Registry) FAQ() *repository.Repository[FAQEntry] { return r.faq }
func (r *Registry) Settings() *repository.Repository[Settings] { return r.settings }

// StoreSettings reads the store's settings document. A store without one yields nil and no error.
func (r *Registry) StoreSettings(ctx context.Context, storeID string) (*Settings, error) {
	settings, err := r.settings.Get(ctx, storeID, ThemeSettingsID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	return settings, err
}

type handle[T any] struct {
	spec Spec
	repo *repository.Repository[T]
	reg  *Registry
}

func newHandle[T any](reg *Registry, kind Kind, repo *repository.Repository[T]) Handle {
	spec, _ := Lookup(kind)
	return &handle[T]{spec: spec, repo: repo, reg: reg}
}

func (h *handle[T]) Spec() Spec { return h.spec }

func (h *handle[T]) withDefaults(opts repository.ListOptions) repository.ListOptions {
	if opts.OrderBy == "" && h.spec.DefaultOrder != "" {
		opts.OrderBy = h.spec.DefaultOrder
		opts.Desc = h.spec.DefaultDesc
	}
	return opts
}

func (h *handle[T]) List(ctx context.Context, storeID string, opts repository.ListOptions) (any, error) {
	return h.repo.List(ctx, storeID, h.withDefaults(opts))
}

func (h *handle[T]) Page(ctx context.Context, storeID string, opts repository.ListOptions, page pagination.Pagination) (any, *pagination.PageInfo, error) {
	return h.repo.Page(ctx, storeID, h.withDefaults(opts), page)
}

func (h *handle[T]) Get(ctx context.Context, storeID, id string) (any, error) {
	return h.repo.Get(ctx, storeID, id)
}

func (h *handle[T]) Create(ctx context.Context, storeID string, body []byte) (string, error) {
	if h.spec.ReadOnly {
		return "", h.denied(ErrReadOnly)
	}
	if h.spec.ManagedCreate {
		return "", h.denied(ErrManagedCreate)
	}
	item, err := h.decode(body)
	if err != nil {
		return "", err
	}
	h.stamp(item, true)
	if err := Validate(item); err != nil {
		return "", err
	}
	return h.repo.Create(ctx, storeID, item)
}

func (h *handle[T]) Replace(ctx context.Context, storeID, id string, body []byte) error {
	if h.spec.ReadOnly {
		return h.denied(ErrReadOnly)
	}
	item, err := h.decode(body)
	if err != nil {
		return err
	}
	h.stamp(item, false)
	if err := Validate(item); err != nil {
		return err
	}
	return h.repo.Set(ctx, storeID, id, item)
}

// Patch validates the record as it would look after the update before writing the fields.
func (h *handle[T]) Patch(ctx context.Context, storeID, id string, fields docstore.Data) error {
	if h.spec.ReadOnly {
		return h.denied(ErrReadOnly)
	}
	fields = fields.Clone()
	delete(fields, repository.IDField)
	if len(fields) == 0 {
		return apperror.Validation("no fields to update")
	}
	if _, ok := any(new(T)).(toucher); ok {
		fields["updated_at"] = h.reg.now().UTC()
	}

	current, err := h.repo.Get(ctx, storeID, id)
	if err != nil {
		return err
	}
	body, err := repository.Encode(current)
	if err != nil {
		return err
	}
	normalized, err := docstore.Normalize(fields)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, err, "invalid fields")
	}
	ref, err := h.repo.Ref(storeID, id)
	if err != nil {
		return err
	}
	next, err := docstore.ApplyWrite(body, docstore.UpdateWrite(ref, normalized))
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, err, "invalid fields")
	}
	merged, err := repository.Decode[T](&docstore.Snapshot{Ref: ref, Data: next, Exists: true})
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, err, "invalid fields")
	}
	if err := Validate(merged); err != nil {
		return err
	}
	return h.repo.Update(ctx, storeID, id, fields)
}

func (h *handle[T]) Delete(ctx context.Context, storeID, id string) error {
	if h.spec.ReadOnly {
		return h.denied(ErrReadOnly)
	}
	return h.repo.Delete(ctx, storeID, id)
}

// Reorder sets position to each id's index. Positions of ids not listed are left alone.
func (h *handle[T]) Reorder(ctx context.Context, storeID string, ids []string, chunkSize int) (docstore.BulkResult, error) {
	if !h.spec.Ordered {
		return docstore.BulkResult{}, h.denied(ErrNotOrdered)
	}
	if len(ids) == 0 {
		return docstore.BulkResult{}, apperror.Validation("ids are required")
	}
	seen := make(map[string]struct{}, len(ids))
	patches := make([]repository.Patch, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			return docstore.BulkResult{}, apperror.Validation("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		patches = append(patches, repository.Patch{ID: id, Fields: docstore.Data{"position": i}})
	}
	return h.repo.BatchUpdate(ctx, storeID, patches, chunkSize)
}

func (h *handle[T]) Subscribe(ctx context.Context, storeID string, opts repository.ListOptions, fn func(any, error)) (*docstore.Subscription, error) {
	return h.repo.Subscribe(ctx, storeID, h.withDefaults(opts), func(items []*T, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(items, nil)
	})
}

func (h *handle[T]) decode(body []byte) (*T, error) {
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "malformed "+h.spec.Kind.String()+" body")
	}
	return &item, nil
}

func (h *handle[T]) stamp(item *T, creating bool) {
	if t, ok := any(item).(toucher); ok {
		t.touch(h.reg.now().UTC(), creating)
	}
}

func (h *handle[T]) denied(err error) error {
	return apperror.Wrap(apperror.KindPermissionDenied, err, h.spec.Kind.String())
}
