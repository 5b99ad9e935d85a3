package docstore

import (
	"fmt"
	"strings"
)

// MaxBatchWrites is the hard ceiling of one atomic commit.
const MaxBatchWrites = 500

// DefaultChunkSize leaves headroom below MaxBatchWrites for bulk copies.
const DefaultChunkSize = 400

type Op int

const (
	OpSet Op = iota + 1
	OpMerge
	OpCreate
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Write is a single mutation inside a batch or transaction.
type Write struct {
	Op   Op
	Ref  DocumentRef
	Data Data
}

func SetWrite(ref DocumentRef, data Data) Write { return Write{Op: OpSet, Ref: ref, Data: data} }
func MergeWrite(ref DocumentRef, data Data) Write { return Write{Op: OpMerge, Ref: ref, Data: data} }
func CreateWrite(ref DocumentRef, data Data) Write { return Write{Op: OpCreate, Ref: ref, Data: data} }
func UpdateWrite(ref DocumentRef, data Data) Write { return Write{Op: OpUpdate, Ref: ref, Data: data} }
func DeleteWrite(ref DocumentRef) Write { return Write{Op: OpDelete, Ref: ref} }

func (w Write) prepare() (Write, error) {
	if !w.Ref.valid() {
		return w, invalidRef(w.Ref.path)
	}
	switch w.Op {
	case OpSet, OpMerge, OpCreate, OpUpdate:
		data, err := Normalize(w.Data)
		if err != nil {
			return w, err
		}
		if w.Op == OpUpdate && len(data) == 0 {
			return w, fmt.Errorf("update of %q has no fields", w.Ref.path)
		}
		w.Data = data
	case OpDelete:
		w.Data = nil
	default:
		return w, fmt.Errorf("unknown write op %d", w.Op)
	}
	return w, nil
}

// ApplyWrite computes the post-write body of a document. current is nil when the document does not exist.
// A nil result with a nil error means the document is deleted. Backends call it inside their atomic section.
func ApplyWrite(current Data, w Write) (Data, error) {
	switch w.Op {
	case OpSet:
		return resolveTransforms(w.Data)
	case OpCreate:
		if current != nil {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, w.Ref.path)
		}
		return resolveTransforms(w.Data)
	case OpMerge:
		next := current.Clone()
		if next == nil {
			next = Data{}
		}
		if err := mergeInto(next, w.Data); err != nil {
			return nil, err
		}
		return next, nil
	case OpUpdate:
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, w.Ref.path)
		}
		next := current.Clone()
		for field, value := range w.Data {
			if err := setPath(next, field, value); err != nil {
				return nil, err
			}
		}
		return next, nil
	case OpDelete:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown write op %d", w.Op)
}

// WriteBatch accumulates writes committed atomically. It is not safe for concurrent use.
type WriteBatch struct {
	store  *Store
	writes []Write
}

func (b *WriteBatch) Set(ref DocumentRef, data Data) *WriteBatch {
	b.writes = append(b.writes, SetWrite(ref, data))
	return b
}

func (b *WriteBatch) Merge(ref DocumentRef, data Data) *WriteBatch {
	b.writes = append(b.writes, MergeWrite(ref, data))
	return b
}

func (b *WriteBatch) Create(ref DocumentRef, data Data) *WriteBatch {
	b.writes = append(b.writes, CreateWrite(ref, data))
	return b
}

func (b *WriteBatch) Update(ref DocumentRef, data Data) *WriteBatch {
	b.writes = append(b.writes, UpdateWrite(ref, data))
	return b
}

func (b *WriteBatch) Delete(ref DocumentRef) *WriteBatch {
	b.writes = append(b.writes, DeleteWrite(ref))
	return b
}

func (b *WriteBatch) Add(w ...Write) *WriteBatch {
	b.writes = append(b.writes, w...)
	return b
}

func (b *WriteBatch) Len() int { return len(b.writes) }

// ChunkWrites splits writes into groups of at most limit entries. Writes addressing the same document stay in
// one chunk and keep their relative order; groups are packed in order of first appearance.
func ChunkWrites(writes []Write, limit int) ([][]Write, error) {
	if limit <= 0 || limit > MaxBatchWrites {
		limit = DefaultChunkSize
	}
	if len(writes) == 0 {
		return nil, nil
	}

	order := make([]string, 0, len(writes))
	groups := make(map[string][]Write, len(writes))
	for _, w := range writes {
		key := w.Ref.path
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], w)
	}

	var (
		chunks  [][]Write
		current []Write
	)
	for _, key := range order {
		group := groups[key]
		if len(group) > limit {
			return nil, fmt.Errorf("%w: %d writes for %s exceed chunk size %d", ErrBatchTooLarge, len(group), key, limit)
		}
		if len(current)+len(group) > limit {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, group...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// BulkResult describes a chunked commit.
type BulkResult struct {
	Chunks    int
	Committed int
	Writes    int
}

func touchedCollections(writes []Write) []string {
	seen := make(map[string]struct{}, len(writes))
	out := make([]string, 0, 4)
	for _, w := range writes {
		path := w.Ref.Parent().path
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

func describeWrites(writes []Write) string {
	parts := make([]string, 0, len(writes))
	for _, w := range writes {
		parts = append(parts, w.Op.String()+" "+w.Ref.path)
	}
	return strings.Join(parts, ", ")
}
