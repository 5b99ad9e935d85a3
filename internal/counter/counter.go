// Package counter issues per-store sequence numbers (service order numbers, chatbot versions).
package counter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	Collection = "counters"
	valueField = "value"
)

var ErrCorrupt = errors.New("counter_corrupt")

var Module = fx.Module("counter",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Client   docstore.Client
	Resolver *resolver.Resolver
	Log      *zap.Logger
}

type Counter struct {
	client   docstore.Client
	resolver *resolver.Resolver
	log      *zap.Logger
}

func New(p Params) *Counter {
	return &Counter{
		client:   p.Client,
		resolver: p.Resolver,
		log:      p.Log.Named("counter"),
	}
}

// Next advances tenants/{storeID}/counters/{name} and returns the new value. The first call returns 1.
func (c *Counter) Next(ctx context.Context, storeID, name string) (int64, error) {
	ref, err := c.resolver.Document(Collection, name, storeID)
	if err != nil {
		return 0, err
	}

	var next int64
	err = c.client.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		current, err := readValue(ctx, tx, ref)
		if err != nil {
			return err
		}
		next = current + 1
		tx.Set(ref, docstore.Data{valueField: next})
		return nil
	})
	if err != nil {
		c.log.Warn("counter advance failed",
			zap.String("store_id", storeID),
			zap.String("counter", name),
			zap.Error(err),
		)
		return 0, err
	}
	return next, nil
}

// Peek returns the last issued value without advancing it. A missing counter reads as 0.
func (c *Counter) Peek(ctx context.Context, storeID, name string) (int64, error) {
	ref, err := c.resolver.Document(Collection, name, storeID)
	if err != nil {
		return 0, err
	}
	snap, err := c.client.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return valueOf(snap)
}

func readValue(ctx context.Context, tx *docstore.Transaction, ref docstore.DocumentRef) (int64, error) {
	snap, err := tx.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return valueOf(snap)
}

func valueOf(snap *docstore.Snapshot) (int64, error) {
	raw, ok := snap.Data[valueField]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s holds %v", ErrCorrupt, snap.Ref.Path(), raw)
	}
	return int64(f), nil
}
