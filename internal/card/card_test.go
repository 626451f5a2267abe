package card

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
)

func TestFromExtraction(t *testing.T) {
	x := testutil.ReadyExtraction(3)
	x.Transaction.Time = "2026-09-30T18:45:00Z"
	x.Notes = "Looks like a supermarket"

	c := FromExtraction("bs-1", x)
	assert.Equal(t, Identity{BatchSessionID: "bs-1", TransactionIndex: 3}, c.Identity)
	assert.Equal(t, "Purchase 4", c.Description)
	assert.Equal(t, "2026-09-30", c.Date)
	assert.Equal(t, "card", c.PaymentMethod)
	assert.Equal(t, "cat-groceries", c.CategoryID)
	assert.Equal(t, "ct-shop", c.ContactID)
	assert.Equal(t, "Corner Shop", c.Counterparty)
	assert.Equal(t, "EUR", c.Currency)
	assert.InDelta(t, 40.0, c.Amount, 0.001)
	assert.Equal(t, model.StateReady, c.State)
	assert.Equal(t, "Looks like a supermarket", c.Notes)
}

func TestFromExtraction_NullTransaction(t *testing.T) {
	c := FromExtraction("bs-1", testutil.UnclearExtraction(0))
	assert.Equal(t, model.StateNeedsClarification, c.State)
	assert.Empty(t, c.Description)
	assert.Empty(t, c.CategoryID)

	_, err := c.Edits()
	assert.ErrorIs(t, err, common.ErrMissingField)
}

func TestCard_SetGetEdits(t *testing.T) {
	c := FromExtraction("bs-1", testutil.ReadyExtraction(0))
	for _, f := range Fields {
		c.Set(f, "v-"+f.String())
		assert.Equal(t, "v-"+f.String(), c.Get(f))
	}

	edits, err := c.Edits()
	require.NoError(t, err)
	assert.Equal(t, "v-Description", edits.Description)
	assert.Equal(t, "v-Category", edits.CategoryID)
	assert.Equal(t, "v-Date", edits.Date)
	assert.Equal(t, "v-Payment method", edits.PaymentMethod)
	assert.Equal(t, "v-Contact", edits.ContactID)

	c.Set(FieldDescription, "")
	_, err = c.Edits()
	assert.ErrorIs(t, err, common.ErrMissingField)
}

func TestBinder_ResyncsOnlyOnIdentityChange(t *testing.T) {
	b := NewBinder(nil)
	first := testutil.ReadyExtraction(0)

	assert.True(t, b.Sync("bs-1", first))
	b.Card().Set(FieldDescription, "edited by reviewer")

	// Re-render with the same record keeps the edit.
	assert.False(t, b.Sync("bs-1", first))
	assert.Equal(t, "edited by reviewer", b.Card().Description)

	// Status changes are reflected without discarding edits.
	skipped := first.Clone()
	skipped.ProcessingStatus = model.ProcessingSkipped
	assert.False(t, b.Sync("bs-1", skipped))
	assert.Equal(t, model.StateSkipped, b.Card().State)
	assert.Equal(t, "edited by reviewer", b.Card().Description)

	// A different index re-derives.
	assert.True(t, b.Sync("bs-1", testutil.ReadyExtraction(1)))
	assert.Equal(t, "Purchase 2", b.Card().Description)

	// Same index in a different session re-derives.
	assert.True(t, b.Sync("bs-2", testutil.ReadyExtraction(1)))

	b.Card().Set(FieldDescription, "again")
	b.Reset("bs-2", testutil.ReadyExtraction(1))
	assert.Equal(t, "Purchase 2", b.Card().Description)
}

func newReference(t *testing.T) (*Reference, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	backend.SetReference(
		[]model.Category{
			{ID: "cat-groceries", Name: "Groceries", Type: model.CategoryTypeExpense, IsActive: true},
			{ID: "cat-salary", Name: "Salary", Type: model.CategoryTypeIncome, IsActive: true},
			{ID: "cat-old", Name: "Legacy", IsActive: false},
		},
		[]model.Contact{{ID: "ct-shop", Name: "Corner Shop"}},
		nil,
	)
	return NewReference(backend), backend
}

func TestReference_LoadsOnce(t *testing.T) {
	ref, backend := newReference(t)
	ctx := context.Background()

	require.NoError(t, ref.Load(ctx))
	require.NoError(t, ref.Load(ctx))
	assert.Equal(t, 1, backend.CallCount(testutil.MethodListCategories))
	assert.Equal(t, 1, backend.CallCount(testutil.MethodListContacts))

	assert.Len(t, ref.Categories(), 2, "inactive categories are hidden")
	assert.Equal(t, "Groceries", ref.CategoryName("cat-groceries"))
	assert.Equal(t, "cat-unknown", ref.CategoryName("cat-unknown"))
	assert.Equal(t, "Corner Shop", ref.ContactName("ct-shop"))
}

func TestReference_SharedCopies(t *testing.T) {
	ref, _ := newReference(t)
	require.NoError(t, ref.Load(context.Background()))

	cats := ref.Categories()
	cats[0].Name = "mutated"
	assert.Equal(t, "Groceries", ref.Categories()[0].Name)
}

func TestReference_RetriesAfterFailure(t *testing.T) {
	ref, backend := newReference(t)
	backend.FailNext(testutil.MethodListCategories, errors.New("boom"))
	ctx := context.Background()

	require.Error(t, ref.Load(ctx))
	require.NoError(t, ref.Load(ctx))
	assert.Len(t, ref.Contacts(), 1)
}

func TestReference_Match(t *testing.T) {
	ref, _ := newReference(t)
	require.NoError(t, ref.Load(context.Background()))

	id, ok := ref.MatchCategory("  groceries ")
	assert.True(t, ok)
	assert.Equal(t, "cat-groceries", id)

	id, ok = ref.MatchCategory("cat-salary")
	assert.True(t, ok)
	assert.Equal(t, "cat-salary", id)

	_, ok = ref.MatchCategory("Legacy")
	assert.False(t, ok)

	id, ok = ref.MatchContact("corner shop")
	assert.True(t, ok)
	assert.Equal(t, "ct-shop", id)
}

func TestBinder_CompletesCategoryFromName(t *testing.T) {
	ref, _ := newReference(t)
	require.NoError(t, ref.Load(context.Background()))

	x := testutil.ReadyExtraction(0)
	x.EnrichmentData.CategoryID = ""
	x.Transaction.Category = "Groceries"

	b := NewBinder(ref)
	b.Sync("bs-1", x)
	assert.Equal(t, "cat-groceries", b.Card().CategoryID)
	assert.Equal(t, "Groceries", b.Card().CategoryName)
}
