package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/services"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/memory"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
)

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

func openStore(t *testing.T) *buffer.Store {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDrainRetriesTransientAndDeadLettersInvalid(t *testing.T) {
	store := openStore(t)
	d := usecase.NewDispatcher()

	flaky := 0
	d.Register("test.ok", func(context.Context, []byte) error { return nil })
	d.Register("test.flaky", func(context.Context, []byte) error {
		flaky++
		if flaky == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	d.Register("test.invalid", func(context.Context, []byte) error {
		return domain.Validation("quantity", "must not be negative")
	})

	bp := services.NewBufferProcessor(store, staticHealth(true), d, zap.NewNop(), services.ProcessorConfig{MaxRetries: 3})
	for _, cmd := range []string{"test.ok", "test.flaky", "test.invalid"} {
		_, err := bp.Accept(buffer.Item{Command: cmd, Payload: []byte(`{}`)})
		require.NoError(t, err)
	}
	_, err := bp.Accept(buffer.Item{Command: "test.unknown"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	applied, err := bp.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, buffer.Stats{Pending: 1, Dead: 1}, bp.Stats())

	applied, err = bp.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied, "flaky command succeeds on retry")
	assert.Equal(t, buffer.Stats{Pending: 0, Dead: 1}, bp.Stats())

	letters, err := store.DeadLetters(10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "test.invalid", letters[0].Command)
	assert.Contains(t, letters[0].LastError, "must not be negative")
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	store := openStore(t)
	d := usecase.NewDispatcher()
	d.Register("test.ok", func(context.Context, []byte) error { return nil })

	bp := services.NewBufferProcessor(store, staticHealth(false), d, zap.NewNop(), services.ProcessorConfig{})
	_, err := bp.Accept(buffer.Item{Command: "test.ok"})
	require.NoError(t, err)

	applied, err := bp.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, 1, bp.Stats().Pending)
}

func TestBridgeBuffersUsageIntoLedger(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories(memory.NewStore())
	deal := &domain.Deal{Name: "Joint venture", Currency: "USD", Participants: []string{"alice"}}
	require.NoError(t, repos.Deals.Create(ctx, deal))
	ing := &domain.Ingredient{DealID: deal.ID, Name: "Model", OwnerID: "alice"}
	ing.Normalize()
	require.NoError(t, repos.Ingredients.Create(ctx, ing))

	ledgerUC := ledger.New(repos, nil, usecase.NewEmitter(repos.Events, nil, zap.NewNop()), nil, zap.NewNop())
	d := usecase.NewDispatcher()
	ledgerUC.Register(d)

	bp := services.NewBufferProcessor(openStore(t), staticHealth(true), d, zap.NewNop(), services.ProcessorConfig{Interval: time.Second})
	bridge := services.NewBufferBridge(bp)

	event := domain.UsageEvent{
		DealID:       deal.ID,
		IngredientID: ing.ID,
		UsageType:    "api_call",
		Quantity:     decimal.NewFromInt(7),
	}
	id, err := bridge.BufferUsage(ctx, event)
	require.NoError(t, err)
	again, err := bridge.BufferUsage(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, id, again, "retried payloads keep their key")

	_, err = bridge.BufferUsage(ctx, domain.UsageEvent{DealID: deal.ID})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	applied, err := bp.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	events, err := ledgerUC.ListEvents(ctx, repository.UsageListFilter{DealID: deal.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
}
