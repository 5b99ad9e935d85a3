// Package memory is an in-process docstore backend. Transactions serialize on a single lock, so it never
// reports contention.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/storeadmin/pkg/docstore"
)

type Backend struct {
	mu   sync.Mutex
	txMu sync.Mutex
	docs map[string]*docstore.Record
}

func NewBackend() *Backend {
	return &Backend{docs: make(map[string]*docstore.Record)}
}

// New returns a Store over a fresh memory backend.
func New(opts ...docstore.Option) *docstore.Store {
	store, err := docstore.New(NewBackend(), opts...)
	if err != nil {
		// only reachable with a failing notifier option
		panic(err)
	}
	return store
}

func (b *Backend) Get(ctx context.Context, path string) (*docstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyRecord(b.docs[path]), nil
}

func (b *Backend) List(ctx context.Context, collection string) ([]*docstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := collection + "/"
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*docstore.Record, 0)
	for path, rec := range b.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (b *Backend) Commit(ctx context.Context, writes []docstore.Write, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitLocked(writes, now)
}

// commitLocked stages every write on a scratch view before touching b.docs.
func (b *Backend) commitLocked(writes []docstore.Write, now time.Time) error {
	staged := make(map[string]*docstore.Record)
	for _, w := range writes {
		path := w.Ref.Path()
		current, ok := staged[path]
		if !ok {
			current = copyRecord(b.docs[path])
		}
		var body docstore.Data
		if current != nil {
			body = current.Data
		}
		next, err := docstore.ApplyWrite(body, w)
		if err != nil {
			return err
		}
		if next == nil {
			staged[path] = nil
			continue
		}
		rec := &docstore.Record{Path: path, Data: next, CreateTime: now, UpdateTime: now}
		if current != nil {
			rec.CreateTime = current.CreateTime
		}
		staged[path] = rec
	}
	for path, rec := range staged {
		if rec == nil {
			delete(b.docs, path)
			continue
		}
		b.docs[path] = rec
	}
	return nil
}

func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.BackendTx) error) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()
	return fn(ctx, &tx{backend: b})
}

func (b *Backend) Close() error { return nil }

type tx struct {
	backend *Backend
}

func (t *tx) Get(ctx context.Context, path string) (*docstore.Record, error) {
	return t.backend.Get(ctx, path)
}

func (t *tx) Commit(ctx context.Context, writes []docstore.Write, now time.Time) error {
	return t.backend.Commit(ctx, writes, now)
}

func copyRecord(rec *docstore.Record) *docstore.Record {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Data = rec.Data.Clone()
	return &out
}
