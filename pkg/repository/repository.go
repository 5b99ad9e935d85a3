// Package repository implements tenant-scoped CRUD over the document store once, parameterized by record type.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"go.uber.org/zap"
)

// IDField is the JSON field that mirrors the document id. It is filled on read and stripped on write.
const IDField = "id"

// Resolver maps (collection, store) to document store references.
type Resolver interface {
	Collection(name, storeID string) docstore.CollectionRef
	Document(name, docID, storeID string) (docstore.DocumentRef, error)
}

// ListOptions narrows a list or subscription. Zero value lists everything in id order.
type ListOptions struct {
	Filters []docstore.Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Patch is one record's field updates inside a batch.
type Patch struct {
	ID     string
	Fields docstore.Data
}

// Repository reads and writes records of type T stored as JSON documents in one logical collection.
type Repository[T any] struct {
	client     docstore.Client
	resolver   Resolver
	collection string
	log        *zap.Logger
}

func New[T any](client docstore.Client, resolver Resolver, collection string, log *zap.Logger) *Repository[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository[T]{
		client:     client,
		resolver:   resolver,
		collection: collection,
		log:        log.Named("repository").With(zap.String("collection", collection)),
	}
}

func (r *Repository[T]) Name() string { return r.collection }

func (r *Repository[T]) Collection(storeID string) docstore.CollectionRef {
	return r.resolver.Collection(r.collection, storeID)
}

func (r *Repository[T]) Ref(storeID, id string) (docstore.DocumentRef, error) {
	return r.resolver.Document(r.collection, id, storeID)
}

func (r *Repository[T]) Get(ctx context.Context, storeID, id string) (*T, error) {
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return nil, err
	}
	snap, err := r.client.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Decode[T](snap)
}

func (r *Repository[T]) List(ctx context.Context, storeID string, opts ListOptions) ([]*T, error) {
	snaps, err := r.client.Documents(ctx, r.query(storeID, opts))
	if err != nil {
		return nil, err
	}
	return decodeAll[T](snaps)
}

// Page lists one cursor page. The cursor is the id of the last item of the previous page.
func (r *Repository[T]) Page(ctx context.Context, storeID string, opts ListOptions, page pagination.Pagination) ([]*T, *pagination.PageInfo, error) {
	size := page.PageSize
	if size <= 0 {
		size = 50
	}
	opts.Limit = 0
	snaps, err := r.client.Documents(ctx, r.query(storeID, opts))
	if err != nil {
		return nil, nil, err
	}

	start := 0
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: malformed page token", docstore.ErrInvalidReference)
		}
		start = len(snaps)
		for i, snap := range snaps {
			if snap.Ref.ID() == cursor.ID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+size+1, len(snaps))
	window := snaps[start:end]

	cursors := make(map[*docstore.Snapshot]string, len(window))
	for _, snap := range window {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: snap.Ref.ID()})
		if err != nil {
			return nil, nil, err
		}
		cursors[snap] = token
	}
	window, info := pagination.BuildCursorPageInfo(window, size, func(s *docstore.Snapshot) string { return cursors[s] })
	items, err := decodeAll[T](window)
	if err != nil {
		return nil, nil, err
	}
	return items, info, nil
}

// Subscribe pushes the full, freshly decoded list on every change. The caller owns the subscription and must
// close it on every exit path, including a store switch.
func (r *Repository[T]) Subscribe(ctx context.Context, storeID string, opts ListOptions, fn func([]*T, error)) (*docstore.Subscription, error) {
	return r.client.Listen(ctx, r.query(storeID, opts), func(snaps []*docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		items, err := decodeAll[T](snaps)
		fn(items, err)
	})
}

// Create stores item under a generated id, or under its own id when set. It fails if the id is taken.
func (r *Repository[T]) Create(ctx context.Context, storeID string, item *T) (string, error) {
	data, err := Encode(item)
	if err != nil {
		return "", err
	}
	id, _ := data[IDField].(string)
	delete(data, IDField)
	if strings.TrimSpace(id) == "" {
		id = r.client.NewDocID()
	}
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return "", err
	}
	r.warnLegacy(storeID, "create")
	if err := r.client.Create(ctx, ref, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set replaces the record body.
func (r *Repository[T]) Set(ctx context.Context, storeID, id string, item *T) error {
	w, err := r.SetWrite(storeID, id, item)
	if err != nil {
		return err
	}
	r.warnLegacy(storeID, "set")
	return r.client.Set(ctx, w.Ref, w.Data)
}

// Update changes selected fields of an existing record.
func (r *Repository[T]) Update(ctx context.Context, storeID, id string, fields docstore.Data) error {
	w, err := r.UpdateWrite(storeID, id, fields)
	if err != nil {
		return err
	}
	r.warnLegacy(storeID, "update")
	return r.client.Update(ctx, w.Ref, w.Data)
}

func (r *Repository[T]) Delete(ctx context.Context, storeID, id string) error {
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return err
	}
	r.warnLegacy(storeID, "delete")
	return r.client.Delete(ctx, ref)
}

func (r *Repository[T]) SetWrite(storeID, id string, item *T) (docstore.Write, error) {
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return docstore.Write{}, err
	}
	data, err := Encode(item)
	if err != nil {
		return docstore.Write{}, err
	}
	delete(data, IDField)
	return docstore.SetWrite(ref, data), nil
}

// CreateWrite prepares a create of item for a batch, generating the id when the item has none.
func (r *Repository[T]) CreateWrite(storeID string, item *T) (string, docstore.Write, error) {
	data, err := Encode(item)
	if err != nil {
		return "", docstore.Write{}, err
	}
	id, _ := data[IDField].(string)
	delete(data, IDField)
	if strings.TrimSpace(id) == "" {
		id = r.client.NewDocID()
	}
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return "", docstore.Write{}, err
	}
	return id, docstore.CreateWrite(ref, data), nil
}

func (r *Repository[T]) UpdateWrite(storeID, id string, fields docstore.Data) (docstore.Write, error) {
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return docstore.Write{}, err
	}
	if _, ok := fields[IDField]; ok {
		fields = fields.Clone()
		delete(fields, IDField)
	}
	if len(fields) == 0 {
		return docstore.Write{}, errors.New("update has no fields")
	}
	return docstore.UpdateWrite(ref, fields), nil
}

// Commit applies writes as one atomic batch. Writes may target other collections of the same store.
func (r *Repository[T]) Commit(ctx context.Context, writes ...docstore.Write) error {
	b := r.client.Batch().Add(writes...)
	return r.client.CommitBatch(ctx, b)
}

// RunTransaction runs fn in a store transaction. Use GetTx for reads that must hold until commit.
func (r *Repository[T]) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *docstore.Transaction) error) error {
	return r.client.RunTransaction(ctx, fn)
}

func (r *Repository[T]) GetTx(ctx context.Context, tx *docstore.Transaction, storeID, id string) (*T, error) {
	ref, err := r.Ref(storeID, id)
	if err != nil {
		return nil, err
	}
	snap, err := tx.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Decode[T](snap)
}

// BatchUpdate applies patches as chunked atomic batches; a failed chunk leaves earlier chunks committed.
func (r *Repository[T]) BatchUpdate(ctx context.Context, storeID string, patches []Patch, chunkSize int) (docstore.BulkResult, error) {
	writes := make([]docstore.Write, 0, len(patches))
	for _, p := range patches {
		w, err := r.UpdateWrite(storeID, p.ID, p.Fields)
		if err != nil {
			return docstore.BulkResult{}, err
		}
		writes = append(writes, w)
	}
	r.warnLegacy(storeID, "batch_update")
	return r.client.CommitChunked(ctx, writes, chunkSize)
}

// BatchSet writes whole records keyed by id as chunked atomic batches.
func (r *Repository[T]) BatchSet(ctx context.Context, storeID string, items map[string]*T, chunkSize int) (docstore.BulkResult, error) {
	writes := make([]docstore.Write, 0, len(items))
	for id, item := range items {
		w, err := r.SetWrite(storeID, id, item)
		if err != nil {
			return docstore.BulkResult{}, err
		}
		writes = append(writes, w)
	}
	r.warnLegacy(storeID, "batch_set")
	return r.client.CommitChunked(ctx, writes, chunkSize)
}

func (r *Repository[T]) query(storeID string, opts ListOptions) docstore.Query {
	q := r.Collection(storeID).Query()
	for _, f := range opts.Filters {
		q = q.Where(f.Field, f.Op, f.Value)
	}
	if opts.OrderBy != "" {
		dir := docstore.Asc
		if opts.Desc {
			dir = docstore.Desc
		}
		q = q.OrderBy(opts.OrderBy, dir)
	}
	if opts.Limit > 0 {
		q = q.WithLimit(opts.Limit)
	}
	return q
}

func (r *Repository[T]) warnLegacy(storeID, op string) {
	if strings.TrimSpace(storeID) != "" {
		return
	}
	r.log.Warn("write to legacy root collection", zap.String("op", op))
}

// Encode turns a record into a document body.
func Encode[T any](item *T) (docstore.Data, error) {
	if item == nil {
		return nil, errors.New("record is nil")
	}
	return docstore.Normalize(item)
}

// Decode reads a snapshot into a record and fills its id field.
func Decode[T any](snap *docstore.Snapshot) (*T, error) {
	body := snap.Data.Clone()
	if body == nil {
		body = docstore.Data{}
	}
	body[IDField] = snap.Ref.ID()
	decoded := &docstore.Snapshot{Ref: snap.Ref, Data: body, Exists: snap.Exists}
	var out T
	if err := decoded.DataTo(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", snap.Ref.Path(), err)
	}
	return &out, nil
}

func decodeAll[T any](snaps []*docstore.Snapshot) ([]*T, error) {
	out := make([]*T, 0, len(snaps))
	for _, snap := range snaps {
		item, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
