package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/locker"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/memory"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (s *recordingSubscriber) OnUsageRecorded(_ context.Context, event domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	repos      repository.Registry
	uc         *ledger.UseCase
	subscriber *recordingSubscriber
	deal       *domain.Deal
	ingredient *domain.Ingredient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepositories(memory.NewStore())

	d := &domain.Deal{Name: "Joint venture", Currency: "USD", Participants: []string{"alice", "bob"}}
	require.NoError(t, repos.Deals.Create(ctx, d))
	ing := &domain.Ingredient{
		DealID:  d.ID,
		Name:    "Model",
		Type:    domain.IngredientModel,
		OwnerID: "alice",
		Classification: domain.Classification{
			ValueCategory:    "inference",
			CreditMultiplier: decimal.RequireFromString("1.5"),
		},
	}
	ing.Normalize()
	require.NoError(t, repos.Ingredients.Create(ctx, ing))

	uc := ledger.New(repos, locker.NewLocal(), usecase.NewEmitter(repos.Events, nil, zap.NewNop()), nil, zap.NewNop())
	sub := &recordingSubscriber{}
	uc.Subscribe(sub)
	return &fixture{repos: repos, uc: uc, subscriber: sub, deal: d, ingredient: ing}
}

func (fx *fixture) event(quantity string) domain.UsageEvent {
	return domain.UsageEvent{
		DealID:       fx.deal.ID,
		IngredientID: fx.ingredient.ID,
		UsageType:    "api_call",
		Quantity:     decimal.RequireFromString(quantity),
		CostIncurred: decimal.RequireFromString("0.10"),
		RecordedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, created, err := fx.uc.Record(ctx, fx.event("10"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	again, created, err := fx.uc.Record(ctx, fx.event("10"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	summaries, err := fx.uc.Summaries(ctx, domain.UsageFilter{DealID: fx.deal.ID})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].TotalQuantity.Equal(decimal.NewFromInt(10)))
	assert.EqualValues(t, 1, summaries[0].EventCount)

	credits, err := fx.uc.ListCredits(ctx, repository.CreditFilter{DealID: fx.deal.ID})
	require.NoError(t, err)
	require.Len(t, credits, 1, "duplicates never credit twice")
	assert.Equal(t, "alice", credits[0].ParticipantID)
	assert.True(t, credits[0].Amount.Equal(decimal.NewFromInt(15)))

	assert.Len(t, fx.subscriber.events, 1)
}

func TestRecordKeepsCallerID(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	e := fx.event("1")
	e.ID = "evt-42"
	_, created, err := fx.uc.Record(ctx, e)
	require.NoError(t, err)
	assert.True(t, created)

	e.Quantity = decimal.NewFromInt(99)
	_, created, err = fx.uc.Record(ctx, e)
	require.NoError(t, err)
	assert.False(t, created, "same id is a duplicate whatever the payload")

	total, err := fx.uc.Cumulative(ctx, domain.UsageFilter{DealID: fx.deal.ID, UsageType: "api_call"})
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1)))
}

func TestEventIDIsCanonical(t *testing.T) {
	fx := newFixture(t)
	a := fx.event("10")
	b := fx.event("10.0")
	b.ID = "ignored"
	b.UsageType = "  api_call "

	idA, err := ledger.EventID(a)
	require.NoError(t, err)
	idB, err := ledger.EventID(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
	assert.Regexp(t, `^usage_[0-9a-f]{64}$`, idA)

	c := fx.event("11")
	idC, err := ledger.EventID(c)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idC)
}

func TestEventIDNormalizesDecimalsAndZones(t *testing.T) {
	fx := newFixture(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for _, qty := range []string{"1", "1.0", "1.000", "1e0", "0.1e1"} {
		ev := fx.event(qty)
		ev.CostIncurred = decimal.RequireFromString("0.50")
		ev.RecordedAt = at
		id, err := ledger.EventID(ev)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	shifted := fx.event("1")
	shifted.CostIncurred = decimal.RequireFromString("0.5")
	shifted.RecordedAt = at.In(time.FixedZone("CET", 3600))
	id, err := ledger.EventID(shifted)
	require.NoError(t, err)
	ids = append(ids, id)

	for _, other := range ids[1:] {
		assert.Equal(t, ids[0], other)
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	negative := fx.event("-1")
	_, _, err := fx.uc.Record(ctx, negative)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	other := &domain.Deal{Name: "Other", Currency: "USD", Participants: []string{"carol"}}
	require.NoError(t, fx.repos.Deals.Create(ctx, other))
	foreign := fx.event("1")
	foreign.DealID = other.ID
	_, _, err = fx.uc.Record(ctx, foreign)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	missing := fx.event("1")
	missing.IngredientID = "nope"
	_, _, err = fx.uc.Record(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)

	assert.Empty(t, fx.subscriber.events)
}

func TestDispatcherRecordsBufferedUsage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	d := usecase.NewDispatcher()
	fx.uc.Register(d)
	require.True(t, d.Handles(ledger.RecordCommand))

	payload := []byte(`{"deal_id":"` + fx.deal.ID + `","ingredient_id":"` + fx.ingredient.ID + `","usage_type":"api_call","quantity":"4"}`)
	require.NoError(t, d.Execute(ctx, ledger.RecordCommand, payload))
	require.NoError(t, d.Execute(ctx, ledger.RecordCommand, payload))

	events, err := fx.uc.ListEvents(ctx, repository.UsageListFilter{DealID: fx.deal.ID})
	require.NoError(t, err)
	assert.Len(t, events, 1, "replayed payload without id derives the same key")

	assert.Error(t, d.Execute(ctx, ledger.RecordCommand, []byte("{")))
}

func TestCredits(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.uc.AddCredit(ctx, ledger.CreditInput{DealID: fx.deal.ID, ParticipantID: "bob", Tier: domain.CreditUsage, Amount: decimal.NewFromInt(1)})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "usage credits come from the ledger")

	_, err = fx.uc.AddCredit(ctx, ledger.CreditInput{DealID: fx.deal.ID, ParticipantID: "mallory", Tier: domain.CreditValue, Amount: decimal.NewFromInt(1)})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = fx.uc.AddCredit(ctx, ledger.CreditInput{DealID: fx.deal.ID, ParticipantID: "bob", Tier: domain.CreditContribution, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	value, err := fx.uc.AddCredit(ctx, ledger.CreditInput{DealID: fx.deal.ID, ParticipantID: "bob", Tier: domain.CreditValue, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	summary, err := fx.uc.CreditSummary(ctx, fx.deal.ID)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.True(t, summary[0].Value.IsZero())
	assert.True(t, summary[0].Pending.Equal(decimal.NewFromInt(300)))

	verified, err := fx.uc.VerifyCredit(ctx, value.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", verified.VerifiedBy)

	_, err = fx.uc.VerifyCredit(ctx, value.ID, "alice")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))

	summary, err = fx.uc.CreditSummary(ctx, fx.deal.ID)
	require.NoError(t, err)
	assert.True(t, summary[0].Value.Equal(decimal.NewFromInt(300)))
	assert.True(t, summary[0].Contribution.Equal(decimal.NewFromInt(20)))
}
