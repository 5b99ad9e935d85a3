// Package wizard runs the AI-assisted drafting flows. A session moves Input -> Analyzing -> Review -> Applying ->
// Done. A failed analysis returns to Input, a failed apply returns to Review with the drafts intact, and only
// Input and Review can be cancelled.
package wizard

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/genai"
	"github.com/smallbiznis/storeadmin/internal/observability/metrics"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sessionTTL = 2 * time.Hour

var Module = fx.Module("wizard",
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Registry  *records.Registry
	Generator genai.Generator
	Limiter   *ratelimit.StoreLimiter
	Wizard    *config.WizardConfigHolder
	Chatbot   *chatbot.Service
	Metrics   *metrics.Metrics    `optional:"true"`
	AuditSvc  auditdomain.Service `optional:"true"`
	Log       *zap.Logger
}

type Service struct {
	reg      *records.Registry
	gen      genai.Generator
	limiter  *ratelimit.StoreLimiter
	wizard   *config.WizardConfigHolder
	metrics  *metrics.Metrics
	auditSvc auditdomain.Service
	log      *zap.Logger
	sessions *sessions
	handlers map[Kind]handler
	now      func() time.Time
}

func NewService(p Params) *Service {
	log := p.Log.Named("wizard.service")
	s := &Service{
		reg:      p.Registry,
		gen:      p.Generator,
		limiter:  p.Limiter,
		wizard:   p.Wizard,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
		log:      log,
		sessions: newSessions(sessionTTL),
		now:      time.Now,
	}
	s.handlers = map[Kind]handler{
		KindProductListing: &productListing{reg: p.Registry, log: log},
		KindFAQ:            &faq{reg: p.Registry, newID: newID, log: log},
		KindTheme:          &theme{reg: p.Registry, log: log},
		KindChatbot:        &chatbotPrompt{reg: p.Registry, chatbot: p.Chatbot, log: log},
	}
	return s
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Start opens a session in the Input phase.
func (s *Service) Start(ctx context.Context, storeID string, kind Kind, in Input) (*Session, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, ErrInvalidStore
	}
	if _, ok := s.handlers[kind]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := records.Validate(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        newID(),
		StoreID:   storeID,
		Kind:      kind,
		Phase:     PhaseInput,
		Input:     in,
		CreatedBy: tenantctx.Actor(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions.put(sess)
	s.metrics.RecordWizardRun(ctx, kind.String(), "start", "ok")
	return sess.clone(), nil
}

func (s *Service) Get(ctx context.Context, storeID, id string) (*Session, error) {
	return s.sessions.get(storeID, id)
}

// SetInput replaces the input of a session waiting in Input.
func (s *Service) SetInput(ctx context.Context, storeID, id string, in Input) (*Session, error) {
	if err := records.Validate(&in); err != nil {
		return nil, err
	}
	return s.sessions.update(storeID, id, []Phase{PhaseInput}, func(sess *Session) error {
		sess.Input = in
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Analyze gathers store context, asks the model and moves the session to Review with validated drafts. Any
// failure, including a rate limit, leaves the session in Input with the error recorded.
func (s *Service) Analyze(ctx context.Context, storeID, id string) (*Session, error) {
	sess, err := s.sessions.update(storeID, id, []Phase{PhaseInput}, func(sess *Session) error {
		sess.Phase = PhaseAnalyzing
		sess.Error = ""
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return sess, err
	}

	drafts, model, err := s.analyze(ctx, sess)
	if err != nil {
		s.metrics.RecordWizardRun(ctx, sess.Kind.String(), "analyze", outcome(err))
		s.log.Warn("wizard analysis failed",
			zap.String("store_id", storeID),
			zap.String("session_id", id),
			zap.String("kind", sess.Kind.String()),
			zap.Error(err),
		)
		back, uerr := s.sessions.update(storeID, id, []Phase{PhaseAnalyzing}, func(next *Session) error {
			next.Phase = PhaseInput
			next.Error = err.Error()
			next.UpdatedAt = s.now().UTC()
			return nil
		})
		if uerr != nil {
			return back, uerr
		}
		return back, err
	}

	s.metrics.RecordWizardRun(ctx, sess.Kind.String(), "analyze", "ok")
	return s.sessions.update(storeID, id, []Phase{PhaseAnalyzing}, func(next *Session) error {
		for i := range drafts {
			drafts[i].Key = strconv.Itoa(i + 1)
		}
		next.Phase = PhaseReview
		next.Drafts = drafts
		next.Model = model
		next.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *Service) analyze(ctx context.Context, sess *Session) ([]Draft, string, error) {
	h := s.handlers[sess.Kind]
	cfg := s.wizard.Get()

	if _, err := s.limiter.AllowAI(ctx, sess.StoreID); err != nil {
		return nil, "", err
	}
	storeContext, err := h.gather(ctx, sess.StoreID, sess.Input, cfg.ContextLimit)
	if err != nil {
		return nil, "", err
	}
	req := h.request(sess.Input, storeContext)
	req.Model = cfg.ModelFor(sess.Kind.String(), req.Model)

	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, "", err
	}
	drafts, err := h.decode(resp, storeContext, cfg.MaxDrafts)
	if err != nil {
		return nil, "", err
	}
	if len(drafts) == 0 {
		return nil, "", ErrNoDrafts
	}
	return drafts, resp.Model, nil
}

// UpdateDraft replaces a draft value with an admin edit and/or toggles its selection. raw may be empty to only
// change the selection.
func (s *Service) UpdateDraft(ctx context.Context, storeID, id, key string, raw json.RawMessage, selected *bool) (*Session, error) {
	current, err := s.sessions.get(storeID, id)
	if err != nil {
		return nil, err
	}
	var value any
	if len(raw) > 0 {
		value, err = s.handlers[current.Kind].parse(raw)
		if err != nil {
			return nil, err
		}
	}
	return s.sessions.update(storeID, id, []Phase{PhaseReview}, func(sess *Session) error {
		for i := range sess.Drafts {
			if sess.Drafts[i].Key != key {
				continue
			}
			if value != nil {
				if err := sameTarget(sess.Kind, sess.Drafts[i], value); err != nil {
					return err
				}
				sess.Drafts[i].Value = value
				sess.Drafts[i].Edited = true
			}
			if selected != nil {
				sess.Drafts[i].Selected = *selected
			}
			sess.UpdatedAt = s.now().UTC()
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDraftNotFound, key)
	})
}

// sameTarget keeps an edited product listing pointed at the product it was drafted for.
func sameTarget(kind Kind, d Draft, value any) error {
	if kind != KindProductListing {
		return nil
	}
	if v, ok := value.(*ProductListingDraft); ok && v.ProductID != d.TargetID {
		return fmt.Errorf("%w: product_id cannot change", ErrInvalidDraft)
	}
	return nil
}

// Apply writes the selected drafts. A failure returns the session to Review keeping every draft; the result
// records how many chunks committed before the failure.
func (s *Service) Apply(ctx context.Context, storeID, id string) (*Session, error) {
	sess, err := s.sessions.update(storeID, id, []Phase{PhaseReview}, func(sess *Session) error {
		if len(sess.selected()) == 0 {
			return ErrNothingSelected
		}
		sess.Phase = PhaseApplying
		sess.Error = ""
		sess.Result = nil
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return sess, err
	}

	result, err := s.handlers[sess.Kind].apply(ctx, storeID, sess.selected(), s.wizard.Get().ChunkSize)
	if err != nil {
		s.metrics.RecordWizardRun(ctx, sess.Kind.String(), "apply", outcome(err))
		s.log.Warn("wizard apply failed",
			zap.String("store_id", storeID),
			zap.String("session_id", id),
			zap.String("kind", sess.Kind.String()),
			zap.Error(err),
		)
		back, uerr := s.sessions.update(storeID, id, []Phase{PhaseApplying}, func(next *Session) error {
			next.Phase = PhaseReview
			next.Error = err.Error()
			next.Result = result
			next.UpdatedAt = s.now().UTC()
			return nil
		})
		if uerr != nil {
			return back, uerr
		}
		return back, err
	}

	s.metrics.RecordWizardRun(ctx, sess.Kind.String(), "apply", "ok")
	s.audit(ctx, storeID, sess, result)
	return s.sessions.update(storeID, id, []Phase{PhaseApplying}, func(next *Session) error {
		next.Phase = PhaseDone
		next.Result = result
		next.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, storeID, id string) (*Session, error) {
	sess, err := s.sessions.update(storeID, id, []Phase{PhaseInput, PhaseReview}, func(sess *Session) error {
		sess.Phase = PhaseCancelled
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
	if err == nil {
		s.metrics.RecordWizardRun(ctx, sess.Kind.String(), "cancel", "ok")
	}
	return sess, err
}

func (s *Service) audit(ctx context.Context, storeID string, sess *Session, result *ApplyResult) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		Action:     "wizard." + sess.Kind.String() + ".apply",
		Collection: collectionOf(sess.Kind),
		Changes: map[string]any{
			"session_id": sess.ID,
			"applied":    result.Applied,
			"targets":    result.TargetIDs,
			"model":      sess.Model,
		},
	}
	if err := s.auditSvc.AuditLog(ctx, storeID, entry); err != nil {
		s.log.Warn("audit log failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func collectionOf(kind Kind) string {
	switch kind {
	case KindProductListing:
		return records.KindProducts.Collection()
	case KindFAQ:
		return records.KindFAQ.Collection()
	case KindTheme:
		return records.KindSettings.Collection()
	default:
		return records.KindChatbot.Collection()
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNoDrafts):
		return "no_drafts"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
