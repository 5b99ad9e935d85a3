package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Operator is a comparison supported by Where.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpIn             Operator = "in"
	OpArrayContains  Operator = "array-contains"
)

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is a single field predicate.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Order is a single sort key.
type Order struct {
	Field     string
	Direction Direction
}

// Query is an immutable description of a collection read. Builder methods return copies.
type Query struct {
	collection CollectionRef
	filters    []Filter
	orders     []Order
	limit      int
}

func (q Query) Collection() CollectionRef { return q.collection }
func (q Query) Filters() []Filter { return append([]Filter(nil), q.filters...) }
func (q Query) Orders() []Order { return append([]Order(nil), q.orders...) }
func (q Query) Limit() int { return q.limit }

// Where adds a filter. The value is normalized the same way document bodies are.
func (q Query) Where(field string, op Operator, value any) Query {
	next := q.clone()
	next.filters = append(next.filters, Filter{Field: field, Op: op, Value: normalizeValue(value)})
	return next
}

func (q Query) OrderBy(field string, dir Direction) Query {
	next := q.clone()
	next.orders = append(next.orders, Order{Field: field, Direction: dir})
	return next
}

// WithLimit caps the number of results. Zero or negative means unlimited.
func (q Query) WithLimit(n int) Query {
	next := q.clone()
	next.limit = n
	return next
}

func (q Query) clone() Query {
	return Query{
		collection: q.collection,
		filters:    append([]Filter(nil), q.filters...),
		orders:     append([]Order(nil), q.orders...),
		limit:      q.limit,
	}
}

func (q Query) validate() error {
	if !q.collection.valid() {
		return invalidRef(q.collection.path)
	}
	for _, f := range q.filters {
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("%w: empty filter field", ErrInvalidReference)
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual, OpArrayContains:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("operator %q needs a list value", f.Op)
			}
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return nil
}

// Matches reports whether a document body satisfies every filter.
func (q Query) Matches(d Data) bool {
	for _, f := range q.filters {
		if !f.matches(d) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits records in place of a server side query.
func (q Query) Apply(records []*Record) []*Record {
	out := make([]*Record, 0, len(records))
	for _, rec := range records {
		if q.Matches(rec.Data) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.orders {
			a, _ := out[i].Data.Lookup(o.Field)
			b, _ := out[j].Data.Lookup(o.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return lastSegment(out[i].Path) < lastSegment(out[j].Path)
	})
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

func (f Filter) matches(d Data) bool {
	value, ok := d.Lookup(f.Field)
	switch f.Op {
	case OpEqual:
		return ok && equalValues(value, f.Value)
	case OpNotEqual:
		return !ok || !equalValues(value, f.Value)
	case OpLess:
		return ok && sameRank(value, f.Value) && compareValues(value, f.Value) < 0
	case OpLessOrEqual:
		return ok && sameRank(value, f.Value) && compareValues(value, f.Value) <= 0
	case OpGreater:
		return ok && sameRank(value, f.Value) && compareValues(value, f.Value) > 0
	case OpGreaterOrEqual:
		return ok && sameRank(value, f.Value) && compareValues(value, f.Value) >= 0
	case OpIn:
		list, _ := f.Value.([]any)
		for _, item := range list {
			if ok && equalValues(value, item) {
				return true
			}
		}
		return false
	case OpArrayContains:
		list, isList := value.([]any)
		if !ok || !isList {
			return false
		}
		for _, item := range list {
			if equalValues(item, f.Value) {
				return true
			}
		}
		return false
	}
	return false
}

func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	d, err := normalizeMap(map[string]any{"v": v})
	if err != nil {
		return v
	}
	return d["v"]
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// rank groups values of different types so mixed-type ordering is stable.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int64, int32:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	default:
		return 6
	}
}

func sameRank(a, b any) bool {
	return rank(a) == rank(b)
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	}
	if fa, ok := toFloat(a); ok {
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return 0
}
