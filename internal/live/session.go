// Package live multiplexes live record subscriptions for one admin connection.
package live

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("session_closed")

// Update is one pushed list for a kind. Items replaces whatever the receiver held for that kind.
type Update struct {
	StoreID string       `json:"store_id"`
	Kind    records.Kind `json:"kind"`
	Items   any          `json:"items,omitempty"`
	Err     error        `json:"-"`
}

// Session owns every subscription opened for one connection. Subscriptions belong to the store that was active
// when they were opened; SwitchStore closes them all before the new store becomes active.
type Session struct {
	reg *records.Registry
	log *zap.Logger

	mu      sync.Mutex
	storeID string
	subs    map[records.Kind]*docstore.Subscription
	closed  bool
}

func NewSession(reg *records.Registry, storeID string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		reg:     reg,
		log:     log.Named("live.session"),
		storeID: strings.TrimSpace(storeID),
		subs:    make(map[records.Kind]*docstore.Subscription),
	}
}

func (s *Session) StoreID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeID
}

// Watch subscribes to kind in the active store, replacing an earlier subscription to the same kind. fn must not
// call back into the Session and must not block forever; closing waits for an in-flight fn.
func (s *Session) Watch(ctx context.Context, kind records.Kind, opts repository.ListOptions, fn func(Update)) error {
	h, err := s.reg.Handle(kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if prev, ok := s.subs[kind]; ok {
		prev.Close()
		delete(s.subs, kind)
	}

	storeID := s.storeID
	sub, err := h.Subscribe(ctx, storeID, opts, func(items any, err error) {
		fn(Update{StoreID: storeID, Kind: kind, Items: items, Err: err})
	})
	if err != nil {
		return err
	}
	s.subs[kind] = sub
	s.log.Debug("watching", zap.String("store_id", storeID), zap.String("kind", kind.String()))
	return nil
}

// Unwatch closes the subscription to kind, if any.
func (s *Session) Unwatch(kind records.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[kind]; ok {
		sub.Close()
		delete(s.subs, kind)
	}
}

// SwitchStore closes every open subscription, then activates storeID. No callback for the old store runs after
// it returns. Callers re-Watch what they need under the new store.
func (s *Session) SwitchStore(storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closeAllLocked()
	s.log.Debug("store switched", zap.String("from", s.storeID), zap.String("to", storeID))
	s.storeID = strings.TrimSpace(storeID)
	return nil
}

// Active is the number of open subscriptions.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeAllLocked()
}

func (s *Session) closeAllLocked() {
	for kind, sub := range s.subs {
		sub.Close()
		delete(s.subs, kind)
	}
}
