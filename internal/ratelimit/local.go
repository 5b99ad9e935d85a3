package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalBucket is the in-process Bucket used when redis is not configured. Limits are per replica.
type LocalBucket struct {
	mu      sync.Mutex
	buckets map[string]*localState
	now     func() time.Time
}

type localState struct {
	tokens float64
	ts     time.Time
}

func NewLocalBucket() *LocalBucket {
	return &LocalBucket{buckets: make(map[string]*localState), now: time.Now}
}

func (b *LocalBucket) Allow(_ context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if key == "" {
		return &RateLimitResult{Allowed: false}, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return &RateLimitResult{Allowed: false}, errors.New("rate limiter rate and burst must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	state, ok := b.buckets[key]
	if !ok {
		state = &localState{tokens: float64(burst), ts: now}
		b.buckets[key] = state
	} else {
		elapsed := now.Sub(state.ts).Seconds()
		if elapsed > 0 {
			state.tokens = math.Min(float64(burst), state.tokens+elapsed*rate)
		}
		state.ts = now
	}

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	return buildResult(allowed, state.tokens, rate, burst, now), nil
}

// LocalLocker is the in-process Lock used when redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localLock
	now  func() time.Time
}

type localLock struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if current, ok := l.held[key]; ok && now.Before(current.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.held[key]; ok && current.token == token {
		delete(l.held, key)
	}
	return nil
}
