package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrAborted signals transaction contention. Store.RunTransaction retries on it.
var ErrAborted = errors.New("transaction_aborted")

// Backend persists records. Commit must apply all writes or none, using ApplyWrite for the body of each one.
type Backend interface {
	Get(ctx context.Context, path string) (*Record, error)
	// List returns the direct children of a collection path.
	List(ctx context.Context, collection string) ([]*Record, error)
	Commit(ctx context.Context, writes []Write, now time.Time) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx BackendTx) error) error
	Close() error
}

// BackendTx is a transactional view. Get locks the row until the transaction ends.
type BackendTx interface {
	Get(ctx context.Context, path string) (*Record, error)
	Commit(ctx context.Context, writes []Write, now time.Time) error
}

// Notifier fans change notifications out to other processes sharing the backend.
type Notifier interface {
	Publish(ctx context.Context, collections []string) error
	Subscribe(ctx context.Context, fn func(collections []string)) error
	Close() error
}

// Observer receives store level measurements.
type Observer interface {
	ObserveCommit(writes int, err error)
	ObserveChunked(chunks, committed int, err error)
	ObserveTransaction(attempts int, err error)
	SubscriptionOpened()
	SubscriptionClosed()
}

type nopObserver struct{}

func (nopObserver) ObserveCommit(int, error) {}
func (nopObserver) ObserveChunked(int, int, error) {}
func (nopObserver) ObserveTransaction(int, error) {}
func (nopObserver) SubscriptionOpened() {}
func (nopObserver) SubscriptionClosed() {}
