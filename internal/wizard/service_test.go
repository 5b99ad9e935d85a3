package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/genai"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []genai.Request
}

func (g *stubGenerator) Generate(ctx context.Context, req genai.Request) (*genai.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &genai.Response{Text: g.text, Model: "stub-model"}, nil
}

func (g *stubGenerator) respond(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.text, g.err = text, err
}

type fixture struct {
	svc *Service
	reg *records.Registry
	gen *stubGenerator
}

func newFixture(t *testing.T, mutate func(*config.WizardConfig)) fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultWizardConfig()
	cfg.RatePerMinute = 600
	cfg.Burst = 100
	if mutate != nil {
		mutate(&cfg)
	}
	holder := config.NewStaticWizardConfigHolder(cfg)

	res := resolver.New(nil)
	reg := records.New(records.Params{Client: store, Resolver: res, Log: zap.NewNop()})
	gen := &stubGenerator{}
	svc := NewService(Params{
		Registry:  reg,
		Generator: gen,
		Limiter: ratelimit.NewStoreLimiter(ratelimit.Params{
			Bucket: ratelimit.NewLocalBucket(),
			Lock:   ratelimit.NewLocalLocker(),
			Wizard: holder,
			Log:    zap.NewNop(),
		}),
		Wizard: holder,
		Chatbot: chatbot.NewService(chatbot.Params{
			Registry: reg,
			Counter:  counter.New(counter.Params{Client: store, Resolver: res, Log: zap.NewNop()}),
			Log:      zap.NewNop(),
		}),
		Log: zap.NewNop(),
	})
	return fixture{svc: svc, reg: reg, gen: gen}
}

func (f fixture) products(t *testing.T, storeID string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		_, err := f.reg.Products().Create(context.Background(), storeID, &records.Product{
			ID:       id,
			Name:     "old " + id,
			Price:    10,
			Active:   true,
			Position: i,
		})
		require.NoError(t, err)
	}
}

const listingsJSON = `{"listings":[
	{"product_id":"p1","name":"Phone X","description":"A fast phone.","tags":["phone"]},
	{"product_id":"p2","name":"Case Y","description":"A tough case."},
	{"product_id":"ghost","name":"Nope","description":"Unknown product."},
	{"product_id":"p1","name":"Duplicate","description":"Second draft for p1."}
]}`

func TestProductListingFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	f.gen.respond("```json\n"+listingsJSON+"\n```", nil)

	sess, err := f.svc.Start(ctx, "A", KindProductListing, Input{Instructions: "friendly tone"})
	require.NoError(t, err)
	assert.Equal(t, PhaseInput, sess.Phase)

	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseReview, sess.Phase)
	assert.Equal(t, "stub-model", sess.Model)
	require.Len(t, sess.Drafts, 2)
	assert.Equal(t, "1", sess.Drafts[0].Key)
	assert.Equal(t, "p1", sess.Drafts[0].TargetID)
	assert.Equal(t, "p2", sess.Drafts[1].TargetID)

	require.Len(t, f.gen.calls, 1)
	assert.Contains(t, f.gen.calls[0].Prompt, "friendly tone")
	assert.NotNil(t, f.gen.calls[0].Schema)

	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, sess.Phase)
	require.NotNil(t, sess.Result)
	assert.Equal(t, 2, sess.Result.Applied)

	p1, err := f.reg.Products().Get(ctx, "A", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Phone X", p1.Name)
	assert.Equal(t, []string{"phone"}, p1.Tags)
	assert.Equal(t, 10.0, p1.Price)
}

func TestModelOverridePerKind(t *testing.T) {
	f := newFixture(t, func(c *config.WizardConfig) {
		c.Models = map[string]string{"product_listing": "gemini-pro-custom"}
	})
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	f.gen.respond(listingsJSON, nil)

	sess, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)
	_, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro-custom", f.gen.calls[0].Model)
}

func TestAnalyzeFailureReturnsToInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	boom := errors.New("upstream down")
	f.gen.respond("", boom)

	sess, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)

	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseInput, sess.Phase)
	assert.Contains(t, sess.Error, "upstream down")
	assert.Empty(t, sess.Drafts)

	f.gen.respond(`{"listings":[]}`, nil)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.ErrorIs(t, err, ErrNoDrafts)
	assert.Equal(t, PhaseInput, sess.Phase)

	f.gen.respond(listingsJSON, nil)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseReview, sess.Phase)
	assert.Empty(t, sess.Error)

	_, err = f.svc.Analyze(ctx, "A", sess.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAnalyzeRateLimited(t *testing.T) {
	f := newFixture(t, func(c *config.WizardConfig) {
		c.RatePerMinute = 1
		c.Burst = 1
	})
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	f.gen.respond(listingsJSON, nil)

	first, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)
	_, err = f.svc.Analyze(ctx, "A", first.ID)
	require.NoError(t, err)

	second, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)
	second, err = f.svc.Analyze(ctx, "A", second.ID)
	require.ErrorIs(t, err, ratelimit.ErrRateLimited)
	assert.Equal(t, PhaseInput, second.Phase)
	assert.Len(t, f.gen.calls, 1)
}

func TestApplyFailureReturnsToReviewKeepingDrafts(t *testing.T) {
	f := newFixture(t, func(c *config.WizardConfig) { c.ChunkSize = 1 })
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	f.gen.respond(listingsJSON, nil)

	sess, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)

	require.NoError(t, f.reg.Products().Delete(ctx, "A", "p2"))

	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.Error(t, err)
	assert.Equal(t, PhaseReview, sess.Phase)
	assert.NotEmpty(t, sess.Error)
	assert.Len(t, sess.Drafts, 2)
	require.NotNil(t, sess.Result)
	assert.Equal(t, 2, sess.Result.Chunks)
	assert.Equal(t, 1, sess.Result.Committed)

	// deselect the failing draft and retry without another AI call
	off := false
	_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "2", nil, &off)
	require.NoError(t, err)
	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, sess.Phase)
	assert.Len(t, f.gen.calls, 1)
}

func TestUpdateDraftAndCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products(t, "A", "p1", "p2")
	f.gen.respond(listingsJSON, nil)

	sess, err := f.svc.Start(ctx, "A", KindProductListing, Input{})
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "1", json.RawMessage(`{"product_id":"p1","name":""}`), nil)
	var verr *records.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "1", json.RawMessage(`{"product_id":"p2","name":"x","description":"y"}`), nil)
	assert.ErrorIs(t, err, ErrInvalidDraft)

	_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "9", nil, nil)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	sess, err = f.svc.UpdateDraft(ctx, "A", sess.ID, "1", json.RawMessage(`{"product_id":"p1","name":"Edited","description":"Mine"}`), nil)
	require.NoError(t, err)
	assert.True(t, sess.Drafts[0].Edited)
	assert.Equal(t, "Edited", sess.Drafts[0].Value.(*ProductListingDraft).Name)

	off := false
	for _, key := range []string{"1", "2"} {
		_, err = f.svc.UpdateDraft(ctx, "A", sess.ID, key, nil, &off)
		require.NoError(t, err)
	}
	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Equal(t, PhaseReview, sess.Phase)

	sess, err = f.svc.Cancel(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCancelled, sess.Phase)
	_, err = f.svc.Cancel(ctx, "A", sess.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	p1, err := f.reg.Products().Get(ctx, "A", "p1")
	require.NoError(t, err)
	assert.Equal(t, "old p1", p1.Name)
}

func TestFAQAppendsAfterExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.reg.FAQ().Create(ctx, "A", &records.FAQEntry{Question: "Do you repair phones?", Answer: "Yes.", Active: true})
	require.NoError(t, err)
	f.gen.respond(`{"entries":[
		{"question":"Do you  REPAIR phones?","answer":"Yes."},
		{"question":"Do you ship?","answer":"Nationwide."},
		{"question":"Warranty?","answer":"90 days."},
		{"question":"","answer":"missing question"}
	]}`, nil)

	sess, err := f.svc.Start(ctx, "A", KindFAQ, Input{Count: 3})
	require.NoError(t, err)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	require.Len(t, sess.Drafts, 2)
	assert.Contains(t, f.gen.calls[0].Prompt, "Write 3 frequently asked questions")

	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Result.Applied)

	entries, err := f.reg.FAQ().List(ctx, "A", repository.ListOptions{OrderBy: "position"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Do you ship?", entries[1].Question)
	assert.Equal(t, 1, entries[1].Position)
	assert.Equal(t, 2, entries[2].Position)
	assert.Equal(t, sess.Drafts[0].TargetID, entries[1].ID)
}

func TestThemeWizard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.gen.respond(`{"primary_color":"not-a-color","secondary_color":"#000000","background_color":"#ffffff","text_color":"#111111"}`, nil)
	sess, err := f.svc.Start(ctx, "A", KindTheme, Input{})
	require.NoError(t, err)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	assert.ErrorIs(t, err, ErrNoDrafts)
	assert.Equal(t, PhaseInput, sess.Phase)

	f.gen.respond(`{"primary_color":"#1a73e8","secondary_color":"#000000","background_color":"#ffffff","text_color":"#111111","tagline":"Fixed fast"}`, nil)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, sess.Phase)

	settings, err := f.reg.StoreSettings(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "#1a73e8", settings.Theme.PrimaryColor)
	assert.Equal(t, "Fixed fast", settings.Theme.Tagline)
}

func TestChatbotWizardSavesVersion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.gen.respond(`{"name":"Ana","greeting":"Hi!","system_prompt":"Only answer about the store."}`, nil)

	sess, err := f.svc.Start(ctx, "A", KindChatbot, Input{})
	require.NoError(t, err)
	sess, err = f.svc.Analyze(ctx, "A", sess.ID)
	require.NoError(t, err)
	sess, err = f.svc.Apply(ctx, "A", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{chatbot.VersionID(1)}, sess.Result.TargetIDs)

	cfg, err := f.reg.Chatbot().Get(ctx, "A", records.ChatbotConfigID)
	require.NoError(t, err)
	assert.Equal(t, "Only answer about the store.", cfg.SystemPrompt)
	assert.Equal(t, int64(1), cfg.Version)
}

func TestSessionsAreStoreScoped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "A", KindFAQ, Input{})
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, "B", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Analyze(ctx, "B", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.Start(ctx, "", KindFAQ, Input{})
	assert.ErrorIs(t, err, ErrInvalidStore)
	_, err = f.svc.Start(ctx, "A", Kind("poem"), Input{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" FAQ ")
	require.NoError(t, err)
	assert.Equal(t, KindFAQ, k)
	_, err = ParseKind("poem")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
