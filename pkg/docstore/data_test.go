package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStructAndNumbers(t *testing.T) {
	type product struct {
		Name  string    `json:"name"`
		Stock int       `json:"stock"`
		At    time.Time `json:"at"`
	}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	d, err := Normalize(product{Name: "Phone", Stock: 3, At: at})
	require.NoError(t, err)
	assert.Equal(t, "Phone", d["name"])
	assert.Equal(t, float64(3), d["stock"])
	assert.Equal(t, "2025-03-01T10:00:00Z", d["at"])
}

func TestNormalizeRejectsNonObjects(t *testing.T) {
	_, err := Normalize([]int{1, 2})
	assert.Error(t, err)
}

func TestApplyWriteSemantics(t *testing.T) {
	ref := Doc("tenants/a/products/p1")
	current := Data{"name": "Phone", "stock": float64(5), "meta": map[string]any{"color": "red", "size": "L"}}

	next, err := ApplyWrite(current, UpdateWrite(ref, Data{"stock": Increment(-2), "meta.color": "blue"}))
	require.NoError(t, err)
	assert.Equal(t, float64(3), next["stock"])
	assert.Equal(t, map[string]any{"color": "blue", "size": "L"}, next["meta"])
	assert.Equal(t, float64(5), current["stock"], "current body must not be mutated")

	next, err = ApplyWrite(current, MergeWrite(ref, Data{"name": DeleteField, "price": float64(10)}))
	require.NoError(t, err)
	_, hasName := next["name"]
	assert.False(t, hasName)
	assert.Equal(t, float64(10), next["price"])

	_, err = ApplyWrite(nil, UpdateWrite(ref, Data{"stock": 1}))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = ApplyWrite(current, CreateWrite(ref, Data{"name": "x"}))
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	next, err = ApplyWrite(current, DeleteWrite(ref))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRefValidation(t *testing.T) {
	assert.True(t, Collection("tenants/a/products").valid())
	assert.True(t, Collection("/products/").valid())
	assert.False(t, Collection("tenants/a").valid())
	assert.False(t, Collection("").valid())
	assert.True(t, Doc("tenants/a").valid())
	assert.False(t, Doc("tenants/a/products").valid())
	assert.False(t, Collection("tenants//products").valid())

	ref := Collection("tenants/a/products").Doc("p1")
	assert.Equal(t, "tenants/a/products/p1", ref.Path())
	assert.Equal(t, "p1", ref.ID())
	assert.Equal(t, "tenants/a/products", ref.Parent().Path())
	parent, ok := ref.Parent().Parent()
	assert.True(t, ok)
	assert.Equal(t, "tenants/a", parent.Path())
}

func TestQueryApply(t *testing.T) {
	records := []*Record{
		{Path: "products/a", Data: Data{"name": "A", "price": float64(30), "tags": []any{"new"}}},
		{Path: "products/b", Data: Data{"name": "B", "price": float64(10)}},
		{Path: "products/c", Data: Data{"name": "C", "price": float64(20), "tags": []any{"new", "sale"}}},
		{Path: "products/d", Data: Data{"name": "D", "price": "n/a"}},
	}

	q := Collection("products").Query().Where("price", OpGreaterOrEqual, 15).OrderBy("price", Desc)
	got := q.Apply(records)
	require.Len(t, got, 2)
	assert.Equal(t, "products/a", got[0].Path)
	assert.Equal(t, "products/c", got[1].Path)

	got = Collection("products").Query().Where("tags", OpArrayContains, "sale").Apply(records)
	require.Len(t, got, 1)
	assert.Equal(t, "products/c", got[0].Path)

	got = Collection("products").Query().Where("name", OpIn, []string{"B", "D"}).Apply(records)
	require.Len(t, got, 2)

	got = Collection("products").Query().OrderBy("price", Asc).WithLimit(2).Apply(records)
	require.Len(t, got, 2)
	assert.Equal(t, "products/b", got[0].Path)
}
