package formulation_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/locker"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/memory"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/formulation"
	ingredientUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ingredient"
)

type fixture struct {
	repos       repository.Registry
	uc          *formulation.UseCase
	ingredients *ingredientUC.UseCase
	deal        *domain.Deal
}

func newFixture(t *testing.T, opts formulation.Options) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepositories(memory.NewStore())
	l := locker.NewLocal()
	emitter := usecase.NewEmitter(repos.Events, nil, zap.NewNop())

	d := &domain.Deal{Name: "Joint venture", Currency: "USD", Participants: []string{"alice", "bob"}}
	require.NoError(t, repos.Deals.Create(ctx, d))

	return &fixture{
		repos:       repos,
		uc:          formulation.New(repos, l, emitter, opts, zap.NewNop()),
		ingredients: ingredientUC.New(repos, l, zap.NewNop()),
		deal:        d,
	}
}

func (fx *fixture) ingredient(t *testing.T, name, owner string) *domain.Ingredient {
	t.Helper()
	ing, err := fx.ingredients.Register(context.Background(), ingredientUC.RegisterInput{
		DealID:    fx.deal.ID,
		Name:      name,
		Type:      domain.IngredientData,
		OwnerID:   owner,
		CreatedBy: owner,
	})
	require.NoError(t, err)
	return ing
}

// draft builds a formulation holding one ingredient per owner at the given percentages.
func (fx *fixture) draft(t *testing.T, name string, shares map[string]int64) *domain.Formulation {
	t.Helper()
	ctx := context.Background()
	f, err := fx.uc.Create(ctx, fx.deal.ID, name, "")
	require.NoError(t, err)
	for owner, pct := range shares {
		ing := fx.ingredient(t, name+"-"+owner, owner)
		f, err = fx.uc.AddIngredient(ctx, f.ID, formulation.EdgeInput{
			IngredientID:     ing.ID,
			OwnershipPercent: decimal.NewFromInt(pct),
			ValueWeight:      decimal.NewFromInt(1),
		})
		require.NoError(t, err)
	}
	return f
}

func (fx *fixture) activate(t *testing.T, f *domain.Formulation) *domain.Formulation {
	t.Helper()
	ctx := context.Background()
	_, _, err := fx.uc.SubmitForReview(ctx, f.ID)
	require.NoError(t, err)
	active, err := fx.uc.Activate(ctx, f.ID, "alice")
	require.NoError(t, err)
	return active
}

func TestCreateRequiresExistingDeal(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	_, err := fx.uc.Create(context.Background(), "missing", "Blend", "")
	assert.ErrorIs(t, err, domain.ErrDealNotFound)
}

func TestDraftEditing(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()
	f := fx.draft(t, "Blend", map[string]int64{"alice": 60})
	require.Len(t, f.Ingredients, 1)
	edge := f.Ingredients[0]
	assert.Equal(t, "alice", edge.ContributorID, "contributor defaults to the ingredient owner")
	assert.True(t, edge.CreditMultiplier.Equal(decimal.NewFromInt(1)))

	_, err := fx.uc.AddIngredient(ctx, f.ID, formulation.EdgeInput{IngredientID: edge.IngredientID})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "duplicate edge")

	pct := decimal.NewFromInt(100)
	f, err = fx.uc.UpdateIngredient(ctx, f.ID, edge.IngredientID, domain.IngredientChanges{OwnershipPercent: &pct})
	require.NoError(t, err)
	report, err := fx.uc.Composition(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, report.Balanced)

	f, err = fx.uc.RemoveIngredient(ctx, f.ID, edge.IngredientID)
	require.NoError(t, err)
	assert.Empty(t, f.Ingredients)

	_, err = fx.uc.RemoveIngredient(ctx, f.ID, edge.IngredientID)
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)
}

func TestAddIngredientFromAnotherDeal(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()
	other := &domain.Deal{Name: "Other", Currency: "USD", Participants: []string{"carol"}}
	require.NoError(t, fx.repos.Deals.Create(ctx, other))
	foreign, err := fx.ingredients.Register(ctx, ingredientUC.RegisterInput{DealID: other.ID, Name: "Foreign", OwnerID: "carol"})
	require.NoError(t, err)

	f, err := fx.uc.Create(ctx, fx.deal.ID, "Blend", "")
	require.NoError(t, err)
	_, err = fx.uc.AddIngredient(ctx, f.ID, formulation.EdgeInput{IngredientID: foreign.ID})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestSubmitReportsUnbalancedComposition(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	f := fx.draft(t, "Blend", map[string]int64{"alice": 50, "bob": 30})

	submitted, report, err := fx.uc.SubmitForReview(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationPendingReview, submitted.Status)
	assert.False(t, report.Balanced)
	assert.True(t, report.TotalOwnership.Equal(decimal.NewFromInt(80)))
}

func TestActivationLocksComposition(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()
	f := fx.activate(t, fx.draft(t, "Blend", map[string]int64{"alice": 60, "bob": 40}))
	assert.Equal(t, domain.FormulationActive, f.Status)
	assert.Equal(t, "alice", f.ActivatedBy)
	require.NotNil(t, f.ActivatedAt)

	spare := fx.ingredient(t, "spare", "bob")
	_, err := fx.uc.AddIngredient(ctx, f.ID, formulation.EdgeInput{IngredientID: spare.ID})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeLocked))

	_, err = fx.uc.RemoveIngredient(ctx, f.ID, f.Ingredients[0].IngredientID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeLocked))

	locked, err := fx.ingredients.IsLocked(ctx, f.Ingredients[0].IngredientID)
	require.NoError(t, err)
	assert.True(t, locked)
	locked, err = fx.ingredients.IsLocked(ctx, spare.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	name := "renamed"
	_, err = fx.ingredients.Update(ctx, f.Ingredients[0].IngredientID, domain.IngredientChanges{Name: &name})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeLocked))
}

func TestActivateIsIdempotent(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()
	f := fx.activate(t, fx.draft(t, "Blend", map[string]int64{"alice": 100}))

	again, err := fx.uc.Activate(ctx, f.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, f.Version, again.Version)
	assert.Equal(t, "alice", again.ActivatedBy)

	events, err := fx.repos.Events.List(ctx, repository.EventFilter{AggregateID: f.ID, Name: string(domain.EventFormulationActivated)})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestActivateArchivesPreviousActive(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()
	first := fx.activate(t, fx.draft(t, "First", map[string]int64{"alice": 100}))
	second := fx.activate(t, fx.draft(t, "Second", map[string]int64{"bob": 100}))

	active, err := fx.uc.GetActive(ctx, fx.deal.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	old, err := fx.uc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationArchived, old.Status)
	assert.NotNil(t, old.ArchivedAt)
}

func TestActivateDraftNeedsOption(t *testing.T) {
	ctx := context.Background()

	strict := newFixture(t, formulation.Options{})
	f := strict.draft(t, "Blend", map[string]int64{"alice": 100})
	_, err := strict.uc.Activate(ctx, f.ID, "alice")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))

	_, err = strict.uc.Activate(ctx, f.ID, " ")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	lenient := newFixture(t, formulation.Options{AllowDraftActivation: true})
	f = lenient.draft(t, "Blend", map[string]int64{"alice": 100})
	active, err := lenient.uc.Activate(ctx, f.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationActive, active.Status)
}

func TestArchive(t *testing.T) {
	fx := newFixture(t, formulation.Options{})
	ctx := context.Background()

	draft := fx.draft(t, "Draft", map[string]int64{"alice": 100})
	archived, err := fx.uc.Archive(ctx, draft.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationArchived, archived.Status)

	_, err = fx.uc.Archive(ctx, draft.ID, "alice", true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState), "already archived")

	active := fx.activate(t, fx.draft(t, "Live", map[string]int64{"bob": 100}))
	_, err = fx.uc.Archive(ctx, active.ID, "bob", false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))

	archived, err = fx.uc.Archive(ctx, active.ID, "root", true)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationArchived, archived.Status)
	_, err = fx.uc.GetActive(ctx, fx.deal.ID)
	assert.ErrorIs(t, err, domain.ErrNoActiveFormulation)
}
