package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

func draftWith(t *testing.T, percents ...int64) *domain.Formulation {
	t.Helper()
	f, err := domain.NewFormulation("deal-1", "Blend", "")
	require.NoError(t, err)
	f.ID = "f-1"
	for i, p := range percents {
		f.PutIngredient(domain.FormulationIngredient{
			IngredientID:     string(rune('a' + i)),
			OwnershipPercent: decimal.NewFromInt(p),
			ValueWeight:      decimal.NewFromInt(1),
			CreditMultiplier: decimal.NewFromInt(1),
		})
	}
	return f
}

func TestNewFormulationStartsAsDraft(t *testing.T) {
	f, err := domain.NewFormulation("deal-1", "  Blend ", "desc")
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationDraft, f.Status)
	assert.Equal(t, 1, f.Version)
	assert.Equal(t, "Blend", f.Name)

	_, err = domain.NewFormulation("deal-1", " ", "")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestFormulationLifecycle(t *testing.T) {
	f := draftWith(t, 60, 40)
	now := time.Now()

	require.NoError(t, f.EnsureEditable())
	require.NoError(t, f.Submit())
	assert.Equal(t, domain.FormulationPendingReview, f.Status)
	assert.True(t, domain.IsDomainError(f.EnsureEditable(), domain.ErrCodeState))

	changed, err := f.Activate("alice", now, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, f.IsLocked())
	assert.Equal(t, "alice", f.ActivatedBy)
	assert.True(t, domain.IsDomainError(f.EnsureEditable(), domain.ErrCodeLocked))

	changed, err = f.Activate("bob", now.Add(time.Minute), false)
	require.NoError(t, err)
	assert.False(t, changed, "second activation is a no-op")
	assert.Equal(t, "alice", f.ActivatedBy)

	err = f.Archive(now, false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))
	require.NoError(t, f.Archive(now, true))
	assert.Equal(t, domain.FormulationArchived, f.Status)
	assert.False(t, f.IsLocked())

	err = f.Archive(now, true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))
}

func TestFormulationActivateFromDraft(t *testing.T) {
	f := draftWith(t, 100)

	_, err := f.Activate("alice", time.Now(), false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))

	changed, err := f.Activate("alice", time.Now(), true)
	require.NoError(t, err)
	assert.True(t, changed)

	empty := draftWith(t)
	_, err = empty.Activate("alice", time.Now(), true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestFormulationSubmitNeedsIngredients(t *testing.T) {
	f := draftWith(t)
	err := f.Submit()
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestActivateRequiresActor(t *testing.T) {
	f := draftWith(t, 100)
	require.NoError(t, f.Submit())
	_, err := f.Activate(" ", time.Now(), false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Equal(t, domain.FormulationPendingReview, f.Status)
}

func TestCompositionReport(t *testing.T) {
	tests := []struct {
		name     string
		percents []int64
		total    string
		balanced bool
		warnings int
	}{
		{name: "balanced", percents: []int64{60, 40}, total: "100", balanced: true},
		{name: "under", percents: []int64{30, 20}, total: "50", warnings: 1},
		{name: "over", percents: []int64{80, 40}, total: "120", warnings: 1},
		{name: "empty", total: "0", warnings: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := domain.Composition(draftWith(t, tt.percents...))
			assert.Equal(t, tt.total, report.TotalOwnership.String())
			assert.Equal(t, tt.balanced, report.Balanced)
			assert.Len(t, report.Warnings, tt.warnings)
			assert.True(t, report.Delta.Equal(report.TotalOwnership.Sub(domain.Hundred)))
		})
	}
}

func TestPutAndDropIngredient(t *testing.T) {
	f := draftWith(t, 50)
	f.PutIngredient(domain.FormulationIngredient{IngredientID: "a", OwnershipPercent: decimal.NewFromInt(70)})
	require.Len(t, f.Ingredients, 1)
	fi, ok := f.Ingredient("a")
	require.True(t, ok)
	assert.Equal(t, "70", fi.OwnershipPercent.String())
	assert.Equal(t, "f-1", fi.FormulationID)

	assert.True(t, f.DropIngredient("a"))
	assert.False(t, f.DropIngredient("a"))
	assert.Empty(t, f.Ingredients)
}

func TestFormulationIngredientValidate(t *testing.T) {
	fi := domain.FormulationIngredient{IngredientID: "a", OwnershipPercent: decimal.NewFromInt(101)}
	assert.Error(t, fi.Validate())
	fi.OwnershipPercent = decimal.NewFromInt(10)
	fi.ValueWeight = decimal.NewFromInt(-1)
	assert.Error(t, fi.Validate())
	fi.ValueWeight = decimal.Zero
	assert.NoError(t, fi.Validate())
}
