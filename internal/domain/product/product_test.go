package product

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	products []Product
	err      error
	calls    int
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Product
	for _, p := range m.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestPriceLines(t *testing.T) {
	repo := &mockRepo{products: []Product{
		{ID: "p1", Price: decimal.RequireFromString("9.99"), CategoryIDs: []string{"shoes"}},
		{ID: "p2", Price: decimal.RequireFromString("20")},
	}}

	items, err := PriceLines(context.Background(), repo, []Line{
		{ID: "l2", ProductID: "p2", Quantity: 1},
		{ID: "l1", ProductID: "p1", VariantID: "red", Quantity: 3},
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, "l2", items[0].ID)
	assert.True(t, decimal.RequireFromString("20").Equal(items[0].UnitPrice))
	assert.Equal(t, "red", items[1].VariantID)
	assert.Equal(t, []string{"shoes"}, items[1].CategoryIDs)
	assert.True(t, decimal.RequireFromString("29.97").Equal(items[1].Total()))
}

func TestPriceLines_Missing(t *testing.T) {
	repo := &mockRepo{products: []Product{{ID: "p1", Price: decimal.NewFromInt(1)}}}

	_, err := PriceLines(context.Background(), repo, []Line{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ProductID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPriceLines_RepoError(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}

	_, err := PriceLines(context.Background(), repo, []Line{{ProductID: "p1", Quantity: 1}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
}

func TestPriceLines_Empty(t *testing.T) {
	repo := &mockRepo{}

	items, err := PriceLines(context.Background(), repo, nil)

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, repo.calls)
}
