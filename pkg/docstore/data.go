package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Data is the JSON shaped body of a document. Values are normalized through encoding/json before they are
// stored, so numbers read back as float64 and times as RFC3339 strings.
type Data map[string]any

// Record is what a backend persists for one document.
type Record struct {
	Path       string
	Data       Data
	CreateTime time.Time
	UpdateTime time.Time
}

// Snapshot is a point-in-time read of a document.
type Snapshot struct {
	Ref        DocumentRef
	Data       Data
	Exists     bool
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the document body into v using its json tags.
func (s *Snapshot) DataTo(v any) error {
	if s == nil || !s.Exists {
		return ErrNotFound
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func snapshotFromRecord(rec *Record) *Snapshot {
	return &Snapshot{
		Ref:        Doc(rec.Path),
		Data:       rec.Data,
		Exists:     true,
		CreateTime: rec.CreateTime,
		UpdateTime: rec.UpdateTime,
	}
}

type sentinel int

const (
	sentinelDelete sentinel = iota + 1
)

// DeleteField removes a field when used as a value in Update or a merge Set.
var DeleteField any = sentinelDelete

type increment struct {
	n float64
}

// Increment adds n to a numeric field at commit time. A missing field counts as zero.
func Increment(n float64) any {
	return increment{n: n}
}

// Normalize round-trips v through encoding/json so in-memory and SQL backends see identical value shapes.
// Field transforms (DeleteField, Increment) are preserved.
func Normalize(v any) (Data, error) {
	if v == nil {
		return Data{}, nil
	}
	if d, ok := v.(Data); ok {
		return normalizeMap(d)
	}
	if m, ok := v.(map[string]any); ok {
		return normalizeMap(m)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("document body must be a JSON object: %w", err)
	}
	return out, nil
}

func normalizeMap(in map[string]any) (Data, error) {
	out := make(Data, len(in))
	for key, value := range in {
		switch typed := value.(type) {
		case sentinel, increment:
			out[key] = typed
		case map[string]any:
			nested, err := normalizeMap(typed)
			if err != nil {
				return nil, err
			}
			out[key] = map[string]any(nested)
		case Data:
			nested, err := normalizeMap(typed)
			if err != nil {
				return nil, err
			}
			out[key] = map[string]any(nested)
		default:
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out[key] = decoded
		}
	}
	return out, nil
}

// Clone deep-copies a document body.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return map[string]any(Data(typed).Clone())
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a dotted field path.
func (d Data) Lookup(field string) (any, bool) {
	var current any = map[string]any(d)
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(d Data, field string, value any) error {
	parts := strings.Split(field, ".")
	current := map[string]any(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	last := parts[len(parts)-1]
	return assign(current, last, value)
}

func assign(m map[string]any, key string, value any) error {
	switch typed := value.(type) {
	case sentinel:
		if typed == sentinelDelete {
			delete(m, key)
		}
		return nil
	case increment:
		base := 0.0
		if existing, ok := m[key]; ok && existing != nil {
			n, ok := toFloat(existing)
			if !ok {
				return fmt.Errorf("field %q is not numeric", key)
			}
			base = n
		}
		m[key] = base + typed.n
		return nil
	default:
		m[key] = value
		return nil
	}
}

func mergeInto(dst map[string]any, src map[string]any) error {
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			existing, ok := dst[key].(map[string]any)
			if !ok {
				existing = map[string]any{}
				dst[key] = existing
			}
			if err := mergeInto(existing, nested); err != nil {
				return err
			}
			continue
		}
		if err := assign(dst, key, value); err != nil {
			return err
		}
	}
	return nil
}

// resolveTransforms applies transforms against an empty document for plain Set/Create.
func resolveTransforms(d Data) (Data, error) {
	out := Data{}
	if err := mergeInto(out, d); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
