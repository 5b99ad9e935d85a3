package wizard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/storeadmin/internal/cache"
)

type Kind string

const (
	KindProductListing Kind = "product_listing"
	KindFAQ            Kind = "faq"
	KindTheme          Kind = "theme"
	KindChatbot        Kind = "chatbot"
)

func (k Kind) String() string { return string(k) }

func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindProductListing, KindFAQ, KindTheme, KindChatbot:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Phase is the position of a session in Input -> Analyzing -> Review -> Applying -> Done.
type Phase string

const (
	PhaseInput     Phase = "input"
	PhaseAnalyzing Phase = "analyzing"
	PhaseReview    Phase = "review"
	PhaseApplying  Phase = "applying"
	PhaseDone      Phase = "done"
	PhaseCancelled Phase = "cancelled"
)

var (
	ErrUnknownKind       = errors.New("unknown_wizard_kind")
	ErrSessionNotFound   = errors.New("wizard_session_not_found")
	ErrInvalidTransition = errors.New("invalid_wizard_transition")
	ErrDraftNotFound     = errors.New("wizard_draft_not_found")
	ErrInvalidDraft      = errors.New("wizard_invalid_draft")
	ErrNoDrafts          = errors.New("wizard_no_drafts")
	ErrNothingSelected   = errors.New("wizard_nothing_selected")
	ErrInvalidStore      = errors.New("invalid_store")
)

// Input is what the admin provides before analysis.
type Input struct {
	Instructions string   `json:"instructions,omitempty" validate:"max=2000"`
	Count        int      `json:"count,omitempty" validate:"gte=0,lte=100"`
	ProductIDs   []string `json:"product_ids,omitempty" validate:"max=200,dive,required"`
}

// Draft is one AI suggestion. Value holds the kind's draft type; TargetID names the record it will write.
type Draft struct {
	Key      string `json:"key"`
	TargetID string `json:"target_id,omitempty"`
	Selected bool   `json:"selected"`
	Edited   bool   `json:"edited"`
	Value    any    `json:"value"`
}

type ApplyResult struct {
	Applied   int      `json:"applied"`
	Chunks    int      `json:"chunks"`
	Committed int      `json:"committed"`
	TargetIDs []string `json:"target_ids,omitempty"`
}

type Session struct {
	ID        string       `json:"id"`
	StoreID   string       `json:"store_id"`
	Kind      Kind         `json:"kind"`
	Phase     Phase        `json:"phase"`
	Input     Input        `json:"input"`
	Drafts    []Draft      `json:"drafts"`
	Model     string       `json:"model,omitempty"`
	Error     string       `json:"error,omitempty"`
	Result    *ApplyResult `json:"result,omitempty"`
	CreatedBy string       `json:"created_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Session) clone() *Session {
	out := *s
	out.Drafts = append([]Draft(nil), s.Drafts...)
	out.Input.ProductIDs = append([]string(nil), s.Input.ProductIDs...)
	if s.Result != nil {
		r := *s.Result
		r.TargetIDs = append([]string(nil), s.Result.TargetIDs...)
		out.Result = &r
	}
	return &out
}

func (s *Session) selected() []Draft {
	out := make([]Draft, 0, len(s.Drafts))
	for _, d := range s.Drafts {
		if d.Selected {
			out = append(out, d)
		}
	}
	return out
}

// sessions holds in-flight wizard sessions. Sessions are transient and expire after ttl of inactivity.
type sessions struct {
	mu    sync.Mutex
	cache cache.Cache[string, *Session]
	ttl   time.Duration
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{cache: cache.NewTTLCache[string, *Session](), ttl: ttl}
}

func (s *sessions) put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(sess.ID, sess.clone(), s.ttl)
}

func (s *sessions) get(storeID, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.cache.Get(id)
	if !ok || sess.StoreID != storeID {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// update applies fn to the stored session when its phase is one of from. fn runs under the lock and must not block.
func (s *sessions) update(storeID, id string, from []Phase, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.cache.Get(id)
	if !ok || sess.StoreID != storeID {
		return nil, ErrSessionNotFound
	}
	allowed := false
	for _, p := range from {
		if sess.Phase == p {
			allowed = true
			break
		}
	}
	if !allowed {
		return sess.clone(), fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Phase)
	}
	next := sess.clone()
	if err := fn(next); err != nil {
		return sess.clone(), err
	}
	s.cache.Set(id, next, s.ttl)
	return next.clone(), nil
}
