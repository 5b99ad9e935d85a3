package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// MaxTransactionAttempts bounds RunTransaction retries on contention.
const MaxTransactionAttempts = 5

// Client is the document store boundary used by every consumer.
type Client interface {
	Get(ctx context.Context, ref DocumentRef) (*Snapshot, error)
	Documents(ctx context.Context, q Query) ([]*Snapshot, error)
	Set(ctx context.Context, ref DocumentRef, data Data) error
	Merge(ctx context.Context, ref DocumentRef, data Data) error
	Create(ctx context.Context, ref DocumentRef, data Data) error
	Update(ctx context.Context, ref DocumentRef, fields Data) error
	Delete(ctx context.Context, ref DocumentRef) error
	Add(ctx context.Context, collection CollectionRef, data Data) (DocumentRef, error)
	NewDocID() string
	Batch() *WriteBatch
	CommitBatch(ctx context.Context, b *WriteBatch) error
	CommitChunked(ctx context.Context, writes []Write, chunkSize int) (BulkResult, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error
	Listen(ctx context.Context, q Query, fn func([]*Snapshot, error)) (*Subscription, error)
}

type Option func(*Store)

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// Store implements Client over a Backend.
type Store struct {
	backend  Backend
	log      *zap.Logger
	newID    func() string
	now      func() time.Time
	notifier Notifier
	observer Observer
	hub      *changeHub

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	cancel context.CancelFunc
}

var _ Client = (*Store)(nil)

func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("docstore: backend is required")
	}
	s := &Store{
		backend:  backend,
		log:      zap.NewNop(),
		newID:    func() string { return strings.ToLower(ulid.Make().String()) },
		now:      func() time.Time { return time.Now().UTC() },
		observer: nopObserver{},
		hub:      newChangeHub(),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("docstore")

	if s.notifier != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		if err := s.notifier.Subscribe(ctx, s.fanOut); err != nil {
			cancel()
			return nil, fmt.Errorf("docstore: subscribe notifier: %w", err)
		}
	}
	return s, nil
}

func (s *Store) fanOut(collections []string) {
	for _, path := range collections {
		s.hub.publish(path)
	}
}

func (s *Store) NewDocID() string { return s.newID() }

func (s *Store) Get(ctx context.Context, ref DocumentRef) (*Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !ref.valid() {
		return nil, invalidRef(ref.path)
	}
	rec, err := s.backend.Get(ctx, ref.path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.path)
	}
	return snapshotFromRecord(rec), nil
}

func (s *Store) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	records, err := s.backend.List(ctx, q.collection.path)
	if err != nil {
		return nil, err
	}
	records = q.Apply(records)
	out := make([]*Snapshot, 0, len(records))
	for _, rec := range records {
		out = append(out, snapshotFromRecord(rec))
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, ref DocumentRef, data Data) error {
	return s.commit(ctx, []Write{SetWrite(ref, data)})
}

func (s *Store) Merge(ctx context.Context, ref DocumentRef, data Data) error {
	return s.commit(ctx, []Write{MergeWrite(ref, data)})
}

func (s *Store) Create(ctx context.Context, ref DocumentRef, data Data) error {
	return s.commit(ctx, []Write{CreateWrite(ref, data)})
}

// Update changes the named fields of an existing document. Keys may be dotted paths.
func (s *Store) Update(ctx context.Context, ref DocumentRef, fields Data) error {
	return s.commit(ctx, []Write{UpdateWrite(ref, fields)})
}

func (s *Store) Delete(ctx context.Context, ref DocumentRef) error {
	return s.commit(ctx, []Write{DeleteWrite(ref)})
}

// Add creates a document with a generated id.
func (s *Store) Add(ctx context.Context, collection CollectionRef, data Data) (DocumentRef, error) {
	if !collection.valid() {
		return DocumentRef{}, invalidRef(collection.path)
	}
	ref := collection.Doc(s.newID())
	if err := s.commit(ctx, []Write{CreateWrite(ref, data)}); err != nil {
		return DocumentRef{}, err
	}
	return ref, nil
}

func (s *Store) Batch() *WriteBatch {
	return &WriteBatch{store: s}
}

// CommitBatch applies every write of b atomically.
func (s *Store) CommitBatch(ctx context.Context, b *WriteBatch) error {
	if b == nil || len(b.writes) == 0 {
		return ErrEmptyBatch
	}
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(b.writes))
	}
	return s.commit(ctx, b.writes)
}

// Commit is shorthand for CommitBatch on the batch's own store.
func (b *WriteBatch) Commit(ctx context.Context) error {
	if b.store == nil {
		return ErrClosed
	}
	return b.store.CommitBatch(ctx, b)
}

// CommitChunked commits writes as a sequence of independent atomic chunks. It stops at the first failing chunk;
// earlier chunks stay committed and the returned *ChunkError says how many.
func (s *Store) CommitChunked(ctx context.Context, writes []Write, chunkSize int) (BulkResult, error) {
	result := BulkResult{Writes: len(writes)}
	if len(writes) == 0 {
		return result, ErrEmptyBatch
	}
	chunks, err := ChunkWrites(writes, chunkSize)
	if err != nil {
		s.observer.ObserveChunked(0, 0, err)
		return result, err
	}
	result.Chunks = len(chunks)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			chunkErr := &ChunkError{Index: i, Total: len(chunks), Committed: result.Committed, Err: err}
			s.observer.ObserveChunked(len(chunks), result.Committed, chunkErr)
			return result, chunkErr
		}
		if err := s.commit(ctx, chunk); err != nil {
			chunkErr := &ChunkError{Index: i, Total: len(chunks), Committed: result.Committed, Err: err}
			s.log.Warn("chunked commit stopped",
				zap.Int("chunk", i),
				zap.Int("chunks", len(chunks)),
				zap.Int("committed", result.Committed),
				zap.Error(err),
			)
			s.observer.ObserveChunked(len(chunks), result.Committed, chunkErr)
			return result, chunkErr
		}
		result.Committed++
	}
	s.observer.ObserveChunked(len(chunks), result.Committed, nil)
	return result, nil
}

func (s *Store) commit(ctx context.Context, writes []Write) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prepared, err := prepareWrites(writes)
	if err != nil {
		return err
	}
	err = s.backend.Commit(ctx, prepared, s.now())
	s.observer.ObserveCommit(len(prepared), err)
	if err != nil {
		return err
	}
	if ce := s.log.Check(zap.DebugLevel, "committed"); ce != nil {
		ce.Write(zap.String("writes", describeWrites(prepared)))
	}
	s.notify(ctx, prepared)
	return nil
}

func prepareWrites(writes []Write) ([]Write, error) {
	if len(writes) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]Write, 0, len(writes))
	for _, w := range writes {
		p, err := w.prepare()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) notify(ctx context.Context, writes []Write) {
	collections := touchedCollections(writes)
	for _, path := range collections {
		s.hub.publish(path)
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), collections); err != nil {
		s.log.Warn("publish change notification failed", zap.Strings("collections", collections), zap.Error(err))
	}
}

// Transaction is a read-modify-write unit. Reads see committed state only; writes are buffered and applied
// atomically when the callback returns nil.
type Transaction struct {
	tx     BackendTx
	writes []Write
}

func (t *Transaction) Get(ctx context.Context, ref DocumentRef) (*Snapshot, error) {
	if !ref.valid() {
		return nil, invalidRef(ref.path)
	}
	rec, err := t.tx.Get(ctx, ref.path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.path)
	}
	return snapshotFromRecord(rec), nil
}

func (t *Transaction) Set(ref DocumentRef, data Data) {
	t.writes = append(t.writes, SetWrite(ref, data))
}

func (t *Transaction) Merge(ref DocumentRef, data Data) {
	t.writes = append(t.writes, MergeWrite(ref, data))
}

func (t *Transaction) Create(ref DocumentRef, data Data) {
	t.writes = append(t.writes, CreateWrite(ref, data))
}

func (t *Transaction) Update(ref DocumentRef, fields Data) {
	t.writes = append(t.writes, UpdateWrite(ref, fields))
}

func (t *Transaction) Delete(ref DocumentRef) {
	t.writes = append(t.writes, DeleteWrite(ref))
}

// RunTransaction runs fn in a backend transaction, retrying on ErrAborted. fn may run more than once and must
// not have side effects outside the transaction.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var (
		committed []Write
		err       error
		attempt   int
	)
	for attempt = 1; attempt <= MaxTransactionAttempts; attempt++ {
		committed = nil
		err = s.backend.RunInTx(ctx, func(ctx context.Context, btx BackendTx) error {
			tx := &Transaction{tx: btx}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.writes) == 0 {
				return nil
			}
			if len(tx.writes) > MaxBatchWrites {
				return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(tx.writes))
			}
			prepared, err := prepareWrites(tx.writes)
			if err != nil {
				return err
			}
			if err := btx.Commit(ctx, prepared, s.now()); err != nil {
				return err
			}
			committed = prepared
			return nil
		})
		if !errors.Is(err, ErrAborted) || ctx.Err() != nil {
			break
		}
		s.log.Debug("transaction aborted, retrying", zap.Int("attempt", attempt))
	}
	if attempt > MaxTransactionAttempts {
		attempt = MaxTransactionAttempts
	}
	s.observer.ObserveTransaction(attempt, err)
	if err != nil {
		return err
	}
	if len(committed) > 0 {
		s.notify(ctx, committed)
	}
	return nil
}

// Subscription is a live query. fn is never invoked after Close returns.
type Subscription struct {
	store *Store
	watch *watch
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	// released frees the hub watch and the store registration once, on Close or when the context ends.
	released sync.Once
}

// Listen delivers the query result once immediately and again after every change to the collection. Errors are
// delivered through fn and the subscription keeps running. fn must not call Close on its own subscription.
func (s *Store) Listen(ctx context.Context, q Query, fn func([]*Snapshot, error)) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("docstore: listener callback is required")
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &Subscription{
		store: s,
		watch: s.hub.subscribe(q.collection.path),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	s.observer.SubscriptionOpened()

	go sub.run(ctx, q, fn)
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, q Query, fn func([]*Snapshot, error)) {
	defer close(sub.done)
	defer sub.release()

	deliver := func() {
		docs, err := sub.store.Documents(ctx, q)
		select {
		case <-sub.stop:
			return
		default:
		}
		if err != nil && ctx.Err() != nil {
			return
		}
		fn(docs, err)
	}

	deliver()
	for {
		select {
		case <-sub.stop:
			return
		case <-ctx.Done():
			return
		case <-sub.watch.ch:
			deliver()
		}
	}
}

// Close stops delivery and waits for an in-flight callback to finish. It is safe to call more than once.
func (sub *Subscription) Close() {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		close(sub.stop)
		<-sub.done
	})
}

func (sub *Subscription) release() {
	sub.released.Do(func() {
		sub.watch.close()
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
		sub.store.observer.SubscriptionClosed()
	})
}

// Done is closed when the subscription stops, either through Close or its context.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription and releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.notifier != nil {
		errs = append(errs, s.notifier.Close())
	}
	errs = append(errs, s.backend.Close())
	return errors.Join(errs...)
}
