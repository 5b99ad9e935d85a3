package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/genai"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/zap"
)

// handler is the per-kind part of a wizard: what context it reads, how it asks, what it accepts and how it
// persists the accepted drafts.
type handler interface {
	gather(ctx context.Context, storeID string, in Input, limit int) (any, error)
	request(in Input, storeContext any) genai.Request
	// decode turns the AI answer into drafts. Suggestions failing validation are dropped.
	decode(resp *genai.Response, storeContext any, maxDrafts int) ([]Draft, error)
	// parse decodes and validates an admin edit of one draft value.
	parse(raw json.RawMessage) (any, error)
	apply(ctx context.Context, storeID string, drafts []Draft, chunkSize int) (*ApplyResult, error)
}

type storeInfo struct {
	Name    string   `json:"name,omitempty"`
	Tagline string   `json:"tagline,omitempty"`
	Hours   string   `json:"hours,omitempty"`
	Address string   `json:"address,omitempty"`
	Topics  []string `json:"categories,omitempty"`
}

func loadStoreInfo(ctx context.Context, reg *records.Registry, storeID string, limit int) (storeInfo, error) {
	info := storeInfo{Name: storeID}
	settings, err := reg.StoreSettings(ctx, storeID)
	if err != nil {
		return info, err
	}
	if settings != nil {
		if settings.StoreName != "" {
			info.Name = settings.StoreName
		}
		info.Tagline = settings.Theme.Tagline
		info.Hours = settings.Hours
		info.Address = settings.Address
	}
	categories, err := reg.Categories().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Limit: limit})
	if err != nil {
		return info, err
	}
	for _, c := range categories {
		info.Topics = append(info.Topics, c.Name)
	}
	return info, nil
}

func contextJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func withInstructions(prompt string, in Input) string {
	if s := strings.TrimSpace(in.Instructions); s != "" {
		prompt += "\n\nAdditional instructions from the store owner:\n" + s
	}
	return prompt
}

func parseDraft[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: malformed draft: %v", ErrInvalidDraft, err)
	}
	if err := records.Validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func draftValue[T any](d Draft) (*T, error) {
	v, ok := d.Value.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: draft %s holds %T", ErrInvalidDraft, d.Key, d.Value)
	}
	return v, records.Validate(v)
}

// productListing rewrites names, descriptions and tags of existing products.
type productListing struct {
	reg *records.Registry
	log *zap.Logger
}

type productContext struct {
	Store    storeInfo        `json:"store"`
	Products []productSummary `json:"products"`
}

type productSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags,omitempty"`
}

func (h *productListing) gather(ctx context.Context, storeID string, in Input, limit int) (any, error) {
	info, err := loadStoreInfo(ctx, h.reg, storeID, limit)
	if err != nil {
		return nil, err
	}
	var products []*records.Product
	if len(in.ProductIDs) > 0 {
		for _, id := range in.ProductIDs {
			p, err := h.reg.Products().Get(ctx, storeID, id)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", id, err)
			}
			products = append(products, p)
		}
	} else {
		products, err = h.reg.Products().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Limit: limit})
		if err != nil {
			return nil, err
		}
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: the store has no products", ErrNoDrafts)
	}
	out := productContext{Store: info}
	for _, p := range products {
		out.Products = append(out.Products, productSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Brand:       p.Brand,
			Model:       p.Model,
			Condition:   p.Condition,
			Price:       p.Price,
			Tags:        p.Tags,
		})
	}
	return out, nil
}

func (h *productListing) request(in Input, storeContext any) genai.Request {
	prompt := "Rewrite the storefront listing of each product below. Keep product_id unchanged, write a clear name, " +
		"a persuasive description and up to 10 short tags.\n\n" + contextJSON(storeContext)
	return genai.Request{
		System: "You write product listings for an electronics and phone retailer.",
		Prompt: withInstructions(prompt, in),
		Schema: productListingSchema,
	}
}

func (h *productListing) decode(resp *genai.Response, storeContext any, maxDrafts int) ([]Draft, error) {
	var out struct {
		Listings []ProductListingDraft `json:"listings"`
	}
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	known := map[string]struct{}{}
	if c, ok := storeContext.(productContext); ok {
		for _, p := range c.Products {
			known[p.ID] = struct{}{}
		}
	}
	seen := map[string]struct{}{}
	drafts := make([]Draft, 0, len(out.Listings))
	for i := range out.Listings {
		listing := out.Listings[i]
		if _, ok := known[listing.ProductID]; !ok {
			h.log.Debug("dropping listing for unknown product", zap.String("product_id", listing.ProductID))
			continue
		}
		if _, dup := seen[listing.ProductID]; dup {
			continue
		}
		if err := records.Validate(&listing); err != nil {
			h.log.Debug("dropping invalid listing", zap.String("product_id", listing.ProductID), zap.Error(err))
			continue
		}
		seen[listing.ProductID] = struct{}{}
		drafts = append(drafts, Draft{TargetID: listing.ProductID, Selected: true, Value: &listing})
		if len(drafts) == maxDrafts {
			break
		}
	}
	return drafts, nil
}

func (h *productListing) parse(raw json.RawMessage) (any, error) {
	return parseDraft[ProductListingDraft](raw)
}

func (h *productListing) apply(ctx context.Context, storeID string, drafts []Draft, chunkSize int) (*ApplyResult, error) {
	now := h.reg.Now().UTC()
	patches := make([]repository.Patch, 0, len(drafts))
	result := &ApplyResult{}
	for _, d := range drafts {
		v, err := draftValue[ProductListingDraft](d)
		if err != nil {
			return nil, err
		}
		patches = append(patches, repository.Patch{ID: d.TargetID, Fields: docstore.Data{
			"name":        v.Name,
			"description": v.Description,
			"tags":        v.Tags,
			"updated_at":  now,
		}})
		result.TargetIDs = append(result.TargetIDs, d.TargetID)
	}
	bulk, err := h.reg.Products().BatchUpdate(ctx, storeID, patches, chunkSize)
	result.Chunks, result.Committed = bulk.Chunks, bulk.Committed
	if err != nil {
		return result, err
	}
	result.Applied = len(patches)
	return result, nil
}

// faq drafts new question/answer pairs from the knowledge base. Draft targets are fixed at analysis so a
// retried apply overwrites instead of duplicating.
type faq struct {
	reg   *records.Registry
	newID func() string
	log   *zap.Logger
}

type faqContext struct {
	Store     storeInfo        `json:"store"`
	Knowledge []knowledgeBrief `json:"knowledge_base"`
	Existing  []string         `json:"existing_questions"`
	Products  []productSummary `json:"products,omitempty"`
}

type knowledgeBrief struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *faq) gather(ctx context.Context, storeID string, in Input, limit int) (any, error) {
	info, err := loadStoreInfo(ctx, h.reg, storeID, limit)
	if err != nil {
		return nil, err
	}
	out := faqContext{Store: info}
	items, err := h.reg.KnowledgeBase().List(ctx, storeID, repository.ListOptions{
		Filters: []docstore.Filter{{Field: "active", Op: docstore.OpEqual, Value: true}},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out.Knowledge = append(out.Knowledge, knowledgeBrief{Title: item.Title, Content: item.Content})
	}
	existing, err := h.reg.FAQ().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		out.Existing = append(out.Existing, e.Question)
	}
	products, err := h.reg.Products().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out.Products = append(out.Products, productSummary{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	return out, nil
}

func (h *faq) request(in Input, storeContext any) genai.Request {
	count := in.Count
	if count <= 0 {
		count = 8
	}
	prompt := fmt.Sprintf("Write %d frequently asked questions with answers for this store. Do not repeat "+
		"existing_questions. Answer only from the data given.\n\n%s", count, contextJSON(storeContext))
	return genai.Request{
		System: "You write concise customer support content for a retail store.",
		Prompt: withInstructions(prompt, in),
		Schema: faqSchema,
	}
}

func (h *faq) decode(resp *genai.Response, storeContext any, maxDrafts int) ([]Draft, error) {
	var out struct {
		Entries []FAQDraft `json:"entries"`
	}
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	existing := map[string]struct{}{}
	if c, ok := storeContext.(faqContext); ok {
		for _, q := range c.Existing {
			existing[normalizeQuestion(q)] = struct{}{}
		}
	}
	drafts := make([]Draft, 0, len(out.Entries))
	for i := range out.Entries {
		entry := out.Entries[i]
		key := normalizeQuestion(entry.Question)
		if _, dup := existing[key]; dup {
			continue
		}
		if err := records.Validate(&entry); err != nil {
			h.log.Debug("dropping invalid faq entry", zap.Error(err))
			continue
		}
		existing[key] = struct{}{}
		drafts = append(drafts, Draft{TargetID: h.newID(), Selected: true, Value: &entry})
		if len(drafts) == maxDrafts {
			break
		}
	}
	return drafts, nil
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (h *faq) parse(raw json.RawMessage) (any, error) {
	return parseDraft[FAQDraft](raw)
}

func (h *faq) apply(ctx context.Context, storeID string, drafts []Draft, chunkSize int) (*ApplyResult, error) {
	last, err := h.reg.FAQ().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Desc: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	position := 0
	if len(last) > 0 {
		position = last[0].Position + 1
	}

	now := h.reg.Now()
	items := make(map[string]*records.FAQEntry, len(drafts))
	result := &ApplyResult{}
	for _, d := range drafts {
		v, err := draftValue[FAQDraft](d)
		if err != nil {
			return nil, err
		}
		entry := &records.FAQEntry{
			Question: v.Question,
			Answer:   v.Answer,
			Category: v.Category,
			Active:   true,
			Position: position,
		}
		records.Stamp(entry, now, true)
		items[d.TargetID] = entry
		result.TargetIDs = append(result.TargetIDs, d.TargetID)
		position++
	}
	bulk, err := h.reg.FAQ().BatchSet(ctx, storeID, items, chunkSize)
	result.Chunks, result.Committed = bulk.Chunks, bulk.Committed
	if err != nil {
		return result, err
	}
	result.Applied = len(items)
	return result, nil
}

// theme proposes a color palette and tagline stored in the settings document.
type theme struct {
	reg *records.Registry
	log *zap.Logger
}

type themeContext struct {
	Store   storeInfo     `json:"store"`
	Current records.Theme `json:"current_theme"`
}

func (h *theme) gather(ctx context.Context, storeID string, in Input, limit int) (any, error) {
	info, err := loadStoreInfo(ctx, h.reg, storeID, limit)
	if err != nil {
		return nil, err
	}
	out := themeContext{Store: info}
	settings, err := h.reg.StoreSettings(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		out.Current = settings.Theme
	}
	return out, nil
}

func (h *theme) request(in Input, storeContext any) genai.Request {
	prompt := "Propose a storefront theme for this store: hex colors (#rrggbb) with readable contrast, a web safe " +
		"font family and a short tagline.\n\n" + contextJSON(storeContext)
	return genai.Request{
		System: "You are a brand designer for small retail stores.",
		Prompt: withInstructions(prompt, in),
		Schema: themeSchema,
	}
}

func (h *theme) decode(resp *genai.Response, storeContext any, maxDrafts int) ([]Draft, error) {
	var out ThemeDraft
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if c, ok := storeContext.(themeContext); ok {
		out.LogoURL = c.Current.LogoURL
		out.BannerURL = c.Current.BannerURL
	}
	if err := records.Validate(&out); err != nil {
		h.log.Debug("dropping invalid theme", zap.Error(err))
		return nil, nil
	}
	return []Draft{{TargetID: records.ThemeSettingsID, Selected: true, Value: &out}}, nil
}

func (h *theme) parse(raw json.RawMessage) (any, error) {
	return parseDraft[ThemeDraft](raw)
}

func (h *theme) apply(ctx context.Context, storeID string, drafts []Draft, chunkSize int) (*ApplyResult, error) {
	if len(drafts) != 1 {
		return nil, fmt.Errorf("%w: select exactly one theme", ErrInvalidDraft)
	}
	v, err := draftValue[ThemeDraft](drafts[0])
	if err != nil {
		return nil, err
	}
	settings, err := h.reg.StoreSettings(ctx, storeID)
	if err != nil {
		return nil, err
	}
	creating := settings == nil
	if creating {
		settings = &records.Settings{}
	}
	settings.Theme = v.Theme
	records.Stamp(settings, h.reg.Now(), creating)
	if err := h.reg.Settings().Set(ctx, storeID, records.ThemeSettingsID, settings); err != nil {
		return nil, err
	}
	return &ApplyResult{Applied: 1, Chunks: 1, Committed: 1, TargetIDs: []string{records.ThemeSettingsID}}, nil
}

// chatbotPrompt drafts the assistant's system prompt and saves it as a new chatbot version.
type chatbotPrompt struct {
	reg     *records.Registry
	chatbot *chatbot.Service
	log     *zap.Logger
}

type chatbotContext struct {
	Store     storeInfo        `json:"store"`
	Knowledge []knowledgeBrief `json:"knowledge_base"`
	FAQ       []FAQDraft       `json:"faq"`
	Current   string           `json:"current_system_prompt,omitempty"`
}

func (h *chatbotPrompt) gather(ctx context.Context, storeID string, in Input, limit int) (any, error) {
	info, err := loadStoreInfo(ctx, h.reg, storeID, limit)
	if err != nil {
		return nil, err
	}
	out := chatbotContext{Store: info}
	items, err := h.reg.KnowledgeBase().List(ctx, storeID, repository.ListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out.Knowledge = append(out.Knowledge, knowledgeBrief{Title: item.Title, Content: item.Content})
	}
	entries, err := h.reg.FAQ().List(ctx, storeID, repository.ListOptions{OrderBy: "position", Limit: limit})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out.FAQ = append(out.FAQ, FAQDraft{Question: e.Question, Answer: e.Answer})
	}
	current, err := h.chatbot.Get(ctx, storeID)
	if err == nil {
		out.Current = current.SystemPrompt
	} else if !errors.Is(err, chatbot.ErrNotConfigured) {
		return nil, err
	}
	return out, nil
}

func (h *chatbotPrompt) request(in Input, storeContext any) genai.Request {
	prompt := "Write the system prompt, a display name and a greeting for this store's customer chat assistant. " +
		"The prompt must restrict answers to the store data given.\n\n" + contextJSON(storeContext)
	return genai.Request{
		System: "You configure customer service assistants.",
		Prompt: withInstructions(prompt, in),
		Schema: chatbotSchema,
	}
}

func (h *chatbotPrompt) decode(resp *genai.Response, storeContext any, maxDrafts int) ([]Draft, error) {
	var out ChatbotDraft
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if err := records.Validate(&out); err != nil {
		h.log.Debug("dropping invalid chatbot draft", zap.Error(err))
		return nil, nil
	}
	return []Draft{{TargetID: records.ChatbotConfigID, Selected: true, Value: &out}}, nil
}

func (h *chatbotPrompt) parse(raw json.RawMessage) (any, error) {
	return parseDraft[ChatbotDraft](raw)
}

func (h *chatbotPrompt) apply(ctx context.Context, storeID string, drafts []Draft, chunkSize int) (*ApplyResult, error) {
	if len(drafts) != 1 {
		return nil, fmt.Errorf("%w: select exactly one chatbot draft", ErrInvalidDraft)
	}
	v, err := draftValue[ChatbotDraft](drafts[0])
	if err != nil {
		return nil, err
	}
	cfg := records.ChatbotConfig{Temperature: 0.7}
	current, err := h.chatbot.Get(ctx, storeID)
	if err == nil {
		cfg = *current
	} else if !errors.Is(err, chatbot.ErrNotConfigured) {
		return nil, err
	}
	cfg.Name = v.Name
	cfg.Greeting = v.Greeting
	cfg.SystemPrompt = v.SystemPrompt

	saved, err := h.chatbot.Save(ctx, storeID, cfg, "generated by wizard")
	if err != nil {
		return nil, err
	}
	return &ApplyResult{
		Applied:   1,
		Chunks:    1,
		Committed: 1,
		TargetIDs: []string{chatbot.VersionID(saved.Version)},
	}, nil
}
