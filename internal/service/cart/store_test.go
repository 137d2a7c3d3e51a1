package cart

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *Recorder) {
	t.Helper()
	rec := NewRecorder(nil)
	s := NewStore(rec)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return s, rec
}

func candidate(productID string, price string, qty int) Candidate {
	return Candidate{ProductID: productID, Name: "Product " + productID, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func TestStore_AddMergesSameProductAndVariant(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddItem(ctx, candidate("P1", "100", 1)))
	require.NoError(t, s.AddItem(ctx, candidate("P1", "100", 2)))

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.Items[0].Quantity)
	assert.True(t, st.Total.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 3, st.ItemCount)
}

func TestStore_VariantsAreSeparateLines(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	red := candidate("P1", "10", 1)
	red.Variant = "red"
	require.NoError(t, s.AddItem(ctx, candidate("P1", "10", 1)))
	require.NoError(t, s.AddItem(ctx, red))

	st := s.State()
	require.Len(t, st.Items, 2)
	assert.Regexp(t, `^P1_default_\d+$`, st.Items[0].ID)
	assert.Regexp(t, `^P1_red_\d+$`, st.Items[1].ID)
}

func TestStore_MergeKeepsCapturedPrice(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.AddItem(ctx, candidate("P1", "10", 1)))
	require.NoError(t, s.AddItem(ctx, candidate("P1", "12", 1)))

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.True(t, st.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, st.Total.Equal(decimal.NewFromInt(20)))
}

func TestStore_AddRejectsQuantityBelowOne(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))
	rec.Drain()
	before := s.State()

	err := s.AddItem(ctx, candidate("P2", "5", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Equal(t, before, s.State())

	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindError, notes[0].Kind)
	assert.Equal(t, "quantity must be at least 1", notes[0].Message)
}

func TestStore_AddRefusesMergePastLineLimit(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "1", domain.MaxLineQuantity)))
	rec.Drain()
	before := s.State()

	err := s.AddItem(ctx, candidate("P1", "1", 2))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	var limitErr *domain.QuantityLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, domain.MaxLineQuantity, limitErr.Limit)
	assert.Equal(t, before, s.State())
	assert.Equal(t, domain.MaxLineQuantity, s.State().ItemCount)

	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindError, notes[0].Kind)
}

func TestStore_AddRejectsHugeQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.ErrorIs(t, s.AddItem(ctx, candidate("P1", "1", math.MaxInt)), domain.ErrInvalidQuantity)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "1", 1)))
	assert.ErrorIs(t, s.AddItem(ctx, candidate("P1", "1", math.MaxInt)), domain.ErrInvalidQuantity)

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.Items[0].Quantity)
	assert.Equal(t, 1, st.ItemCount)
	assert.True(t, st.Total.Equal(decimal.NewFromInt(1)))
}

func TestStore_SetQuantityAboveLimitIsRefused(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "2", 3)))
	before := s.State()

	err := s.SetQuantity(ctx, before.Items[0].ID, domain.MaxLineQuantity+1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Equal(t, before, s.State())

	require.NoError(t, s.SetQuantity(ctx, before.Items[0].ID, domain.MaxLineQuantity))
	assert.Equal(t, domain.MaxLineQuantity, s.State().ItemCount)
}

func TestStore_LoadCapsMergedQuantity(t *testing.T) {
	s, _ := newTestStore(t)
	s.Load([]domain.CartLineItem{
		{ID: "P1_default_1", ProductID: "P1", UnitPrice: decimal.NewFromInt(1), Quantity: 900},
		{ID: "P1_default_2", ProductID: "P1", UnitPrice: decimal.NewFromInt(1), Quantity: 900},
		{ID: "P2_default_3", ProductID: "P2", UnitPrice: decimal.NewFromInt(1), Quantity: math.MaxInt},
	})

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, domain.MaxLineQuantity, st.Items[0].Quantity)
	assert.Equal(t, domain.MaxLineQuantity, st.ItemCount)
}

func TestStore_RemoveAndClearNotify(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))
	require.NoError(t, s.AddItem(ctx, candidate("P2", "5", 1)))
	id := s.State().Items[0].ID
	rec.Drain()

	s.RemoveItem(ctx, id)
	s.RemoveItem(ctx, id)
	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindRemoved, notes[0].Kind)
	assert.Equal(t, id, notes[0].LineID)
	assert.Equal(t, "Product P1 removed from cart", notes[0].Message)

	s.Clear(ctx)
	notes = rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindCleared, notes[0].Kind)
	assert.Equal(t, "Cart cleared", notes[0].Message)
}

func TestStore_AddRejectsBadCandidates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.ErrorIs(t, s.AddItem(ctx, candidate(" ", "5", 1)), domain.ErrInvalidLineItem)
	assert.ErrorIs(t, s.AddItem(ctx, candidate("P1", "-1", 1)), domain.ErrInvalidLineItem)
	assert.Empty(t, s.State().Items)
}

func TestStore_AddNotifies(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))

	notes := rec.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindAdded, notes[0].Kind)
	assert.Equal(t, "Product P1 added to cart", notes[0].Message)
	assert.Equal(t, s.State().Items[0].ID, notes[0].LineID)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))
	require.NoError(t, s.AddItem(ctx, candidate("P2", "7", 2)))
	id := s.State().Items[0].ID

	s.RemoveItem(ctx, id)
	once := s.State()
	s.RemoveItem(ctx, id)
	assert.Equal(t, once, s.State())

	require.Len(t, once.Items, 1)
	assert.Equal(t, "P2", once.Items[0].ProductID)
	assert.True(t, once.Total.Equal(decimal.NewFromInt(14)))
}

func TestStore_RemoveThenAddStartsNewLine(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 4)))
	s.RemoveItem(ctx, s.State().Items[0].ID)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.Items[0].Quantity)
}

func TestStore_SetQuantityFloorRemoves(t *testing.T) {
	for _, q := range []int{0, -3} {
		ctx := context.Background()
		s, _ := newTestStore(t)
		require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 2)))

		s.SetQuantity(ctx, s.State().Items[0].ID, q)
		st := s.State()
		assert.Empty(t, st.Items)
		assert.True(t, st.Total.IsZero())
		assert.Equal(t, 0, st.ItemCount)
	}
}

func TestStore_SetQuantity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "2.50", 1)))

	s.SetQuantity(ctx, s.State().Items[0].ID, 4)
	st := s.State()
	assert.Equal(t, 4, st.Items[0].Quantity)
	assert.True(t, st.Total.Equal(decimal.RequireFromString("10")))

	s.SetQuantity(ctx, "missing", 9)
	assert.Equal(t, st, s.State())
}

func TestStore_ClearAndObservers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	var calls [][]domain.CartLineItem
	s.Subscribe(func(_ context.Context, items []domain.CartLineItem) { calls = append(calls, items) })

	require.NoError(t, s.AddItem(ctx, candidate("P1", "5", 1)))
	s.Clear(ctx)

	require.Len(t, calls, 2)
	assert.Len(t, calls[0], 1)
	assert.Empty(t, calls[1])
	assert.NotNil(t, s.State().Items)
}

func TestStore_LoadRebuildsIndexWithoutNotifying(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	calls := 0
	s.Subscribe(func(context.Context, []domain.CartLineItem) { calls++ })

	s.Load([]domain.CartLineItem{
		{ID: "P1_default_1", ProductID: "P1", UnitPrice: decimal.NewFromInt(3), Quantity: 2},
		{ID: "P2_default_2", ProductID: "P2", UnitPrice: decimal.NewFromInt(1), Quantity: 0},
	})
	assert.Equal(t, 0, calls)

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.True(t, st.Total.Equal(decimal.NewFromInt(6)))

	require.NoError(t, s.AddItem(ctx, candidate("P1", "3", 1)))
	st = s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.Items[0].Quantity)
}

func TestStore_RoundTripThroughJSON(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddItem(ctx, candidate("P1", "10.50", 2)))
	withVariant := candidate("P2", "0.99", 3)
	withVariant.Variant = "xl"
	withVariant.ImageRef = "p2.jpg"
	require.NoError(t, s.AddItem(ctx, withVariant))

	payload, err := json.Marshal(s.State().Items)
	require.NoError(t, err)
	var decoded []domain.CartLineItem
	require.NoError(t, json.Unmarshal(payload, &decoded))

	restored, _ := newTestStore(t)
	restored.Load(decoded)
	assertSameItems(t, s.State().Items, restored.State().Items)
	assert.True(t, s.State().Total.Equal(restored.State().Total))
}

// Any sequence of operations keeps totals equal to the sum over lines and
// never produces duplicate or empty lines.
func TestStore_RandomOperationsKeepInvariants(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	products := []string{"P1", "P2", "P3", "P4"}
	variants := []string{"", "red", "blue"}

	for run := 0; run < 50; run++ {
		s, _ := newTestStore(t)
		for op := 0; op < 60; op++ {
			items := s.State().Items
			switch rng.Intn(6) {
			case 0, 1, 2:
				c := candidate(products[rng.Intn(len(products))], decimal.NewFromFloat(float64(rng.Intn(5000))/100).String(), rng.Intn(4)-1)
				c.Variant = variants[rng.Intn(len(variants))]
				_ = s.AddItem(ctx, c)
			case 3:
				if len(items) > 0 {
					s.RemoveItem(ctx, items[rng.Intn(len(items))].ID)
				}
			case 4:
				if len(items) > 0 {
					s.SetQuantity(ctx, items[rng.Intn(len(items))].ID, rng.Intn(6)-1)
				}
			case 5:
				if rng.Intn(10) == 0 {
					s.Clear(ctx)
				}
			}
			checkInvariants(t, s.State())
		}
	}
}

func checkInvariants(t *testing.T, st domain.CartState) {
	t.Helper()
	total := decimal.Zero
	count := 0
	seen := make(map[lineKey]bool)
	for _, it := range st.Items {
		require.GreaterOrEqual(t, it.Quantity, 1)
		key := lineKey{productID: it.ProductID, variant: it.Variant}
		require.False(t, seen[key], "duplicate line for %v", key)
		seen[key] = true
		total = total.Add(it.LineTotal())
		count += it.Quantity
	}
	require.True(t, total.Equal(st.Total), "total %s != %s", st.Total, total)
	require.Equal(t, count, st.ItemCount)
}

func assertSameItems(t *testing.T, want, got []domain.CartLineItem) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].ProductID, got[i].ProductID)
		assert.Equal(t, want[i].Variant, got[i].Variant)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].ImageRef, got[i].ImageRef)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice), "price %s != %s", want[i].UnitPrice, got[i].UnitPrice)
		assert.True(t, want[i].AddedAt.Equal(got[i].AddedAt))
	}
}
