package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/services"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/settlement"
)

type fakeSettlements struct {
	mu        sync.Mutex
	contracts []settlement.ScheduledContract
	runs      []string
}

func (f *fakeSettlements) set(contracts ...settlement.ScheduledContract) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contracts = contracts
}

func (f *fakeSettlements) ScheduledContracts(context.Context) ([]settlement.ScheduledContract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]settlement.ScheduledContract(nil), f.contracts...), nil
}

func (f *fakeSettlements) RunScheduled(_ context.Context, contractID string) (*domain.SettlementExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, contractID)
	return &domain.SettlementExecution{ID: "exec-" + contractID, ContractID: contractID}, nil
}

func TestSchedulerSyncTracksContracts(t *testing.T) {
	fake := &fakeSettlements{}
	s := services.NewSettlementScheduler(fake, time.Hour, time.Second, zap.NewNop())
	ctx := context.Background()

	fake.set(
		settlement.ScheduledContract{ID: "c1", Schedule: "0 9 * * *"},
		settlement.ScheduledContract{ID: "c2", Schedule: "@daily"},
		settlement.ScheduledContract{ID: "bad", Schedule: "whenever"},
	)
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, 2, s.Len(), "invalid schedules are skipped")

	fake.set(settlement.ScheduledContract{ID: "c1", Schedule: "0 10 * * *"})
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, 1, s.Len())

	fake.set()
	require.NoError(t, s.Sync(ctx))
	assert.Zero(t, s.Len())
}

func TestSchedulerFiresContracts(t *testing.T) {
	fake := &fakeSettlements{}
	fake.set(settlement.ScheduledContract{ID: "c1", Schedule: "@every 1s"})
	s := services.NewSettlementScheduler(fake, time.Hour, time.Second, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.runs) > 0
	}, 3*time.Second, 50*time.Millisecond)
}
