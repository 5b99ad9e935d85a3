package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrRateLimited = errors.New("rate_limited")
	ErrLocked      = errors.New("operation_in_progress")
)

const (
	keyStoreAI   = "storeadmin:ai:store:%s"
	keyStoreLock = "storeadmin:lock:store:%s:%s"

	defaultStoreLockTTL = 15 * time.Minute
)

type Params struct {
	fx.In

	Bucket  Bucket
	Lock    Lock
	Wizard  *config.WizardConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

// StoreLimiter throttles AI calls per store and serializes long-running bulk operations on one store.
type StoreLimiter struct {
	bucket  Bucket
	lock    Lock
	wizard  *config.WizardConfigHolder
	metrics *metrics.Metrics
	log     *zap.Logger
	lockTTL time.Duration
}

func NewStoreLimiter(p Params) *StoreLimiter {
	return &StoreLimiter{
		bucket:  p.Bucket,
		lock:    p.Lock,
		wizard:  p.Wizard,
		metrics: p.Metrics,
		log:     p.Log.Named("ratelimit"),
		lockTTL: defaultStoreLockTTL,
	}
}

// AllowAI consumes one AI call token for the store. It returns ErrRateLimited with the retry hint when empty.
func (l *StoreLimiter) AllowAI(ctx context.Context, storeID string) (*RateLimitResult, error) {
	cfg := l.wizard.Get()
	rate := float64(cfg.RatePerMinute) / 60
	key := fmt.Sprintf(keyStoreAI, strings.TrimSpace(storeID))

	result, err := l.bucket.Allow(ctx, key, rate, cfg.Burst)
	if err != nil {
		// an unreachable limiter must not block the wizard
		l.log.Warn("rate limiter unavailable, allowing", zap.String("store_id", storeID), zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: cfg.Burst}, nil
	}
	if !result.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, storeID, "wizard_ai", "bucket_empty")
		return result, fmt.Errorf("%w: retry after %s", ErrRateLimited, result.RetryAfter.Round(time.Second))
	}
	l.metrics.RecordRateLimitAllowed(ctx, storeID, "wizard_ai")
	return result, nil
}

// LockStore claims an exclusive operation slot such as "clone" or "migrate" on a store. The returned release
// func is safe to call once the operation ends.
func (l *StoreLimiter) LockStore(ctx context.Context, storeID, operation string) (func(), error) {
	key := fmt.Sprintf(keyStoreLock, strings.TrimSpace(storeID), strings.TrimSpace(operation))
	token, ok, err := l.lock.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrLocked, operation, storeID)
	}
	return func() {
		if err := l.lock.Release(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn("release store lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
