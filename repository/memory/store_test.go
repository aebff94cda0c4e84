package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

var errAbort = errors.New("abort")

func usage(id string, qty int64) domain.UsageEvent {
	return domain.UsageEvent{
		ID:           id,
		DealID:       "deal-1",
		IngredientID: "ing-1",
		UsageType:    "api_call",
		Quantity:     decimal.NewFromInt(qty),
	}
}

func TestWithinTxRollsBackOwnWrites(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore())

	kept := &domain.Deal{Name: "Kept", Currency: "USD", Participants: []string{"alice"}}
	require.NoError(t, repos.Deals.Create(ctx, kept))

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		created := &domain.Deal{ID: "deal-tx", Name: "Scratch", Currency: "USD", Participants: []string{"bob"}}
		require.NoError(t, repos.Deals.Create(ctx, created))

		renamed := *kept
		renamed.Name = "Renamed"
		require.NoError(t, repos.Deals.Update(ctx, &renamed))

		_, err := repos.Usage.Append(ctx, usage("u-1", 5))
		require.NoError(t, err)
		require.NoError(t, repos.Events.Append(ctx, domain.Event{ID: "ev-1", AggregateID: kept.ID, Name: "deal.renamed"}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = repos.Deals.Get(ctx, "deal-tx")
	assert.ErrorIs(t, err, domain.ErrDealNotFound)

	got, err := repos.Deals.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Name)
	assert.Equal(t, kept.Version, got.Version)

	events, err := repos.Usage.List(ctx, repository.UsageListFilter{DealID: "deal-1"})
	require.NoError(t, err)
	assert.Empty(t, events)
	summaries, err := repos.Usage.Summaries(ctx, domain.UsageFilter{DealID: "deal-1"})
	require.NoError(t, err)
	assert.Empty(t, summaries)

	outbox, err := repos.Events.List(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, outbox)
}

func TestRollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore())
	other := &domain.Deal{Name: "Other", Currency: "USD", Participants: []string{"carol"}}

	err := repos.Tx.WithinTx(ctx, func(txCtx context.Context) error {
		_, err := repos.Usage.Append(txCtx, usage("u-tx", 5))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repos.Deals.Create(ctx, other))
			_, err := repos.Usage.Append(ctx, usage("u-outside", 3))
			assert.NoError(t, err)
		}()
		wg.Wait()
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := repos.Deals.Get(ctx, other.ID)
	require.NoError(t, err, "writes outside the transaction survive its rollback")
	assert.Equal(t, "Other", got.Name)

	summaries, err := repos.Usage.Summaries(ctx, domain.UsageFilter{DealID: "deal-1"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].EventCount)
	assert.True(t, decimal.NewFromInt(3).Equal(summaries[0].TotalQuantity))
}

func TestNestedTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(NewStore())

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			return repos.Deals.Create(ctx, &domain.Deal{ID: "deal-nested", Name: "Nested", Currency: "USD", Participants: []string{"alice"}})
		})
	})
	require.NoError(t, err)

	_, err = repos.Deals.Get(ctx, "deal-nested")
	assert.NoError(t, err)
}
