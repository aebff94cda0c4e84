package settlement_test

import (
	"context"
	"errors"
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
	ledgerUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/settlement"
)

var errPayoutStore = errors.New("payout store unavailable")

// failingPayouts accepts `allow` payouts and then fails every Create.
type failingPayouts struct {
	repository.PayoutRepository
	mu    sync.Mutex
	allow int
}

func (f *failingPayouts) Create(ctx context.Context, p *domain.SettlementPayout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allow == 0 {
		return errPayoutStore
	}
	f.allow--
	return f.PayoutRepository.Create(ctx, p)
}

type outcomeCounter struct {
	usecase.NopMetrics
	mu       sync.Mutex
	outcomes map[domain.ExecutionStatus]int
}

func (c *outcomeCounter) ExecutionFinished(status domain.ExecutionStatus, _ decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[domain.ExecutionStatus]int)
	}
	c.outcomes[status]++
}

type fixture struct {
	repos   repository.Registry
	uc      *settlement.UseCase
	metrics *outcomeCounter
	deal    *domain.Deal
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// newFixture seeds a deal whose active formulation attributes 65/30/5 to
// alice, bob and carol. wrap may swap repositories before the use case is built.
func newFixture(t *testing.T, wrap func(*repository.Registry)) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepositories(memory.NewStore())

	d := &domain.Deal{Name: "Joint venture", Currency: "USD", Participants: []string{"alice", "bob", "carol"}}
	require.NoError(t, repos.Deals.Create(ctx, d))

	activatedAt := time.Now().UTC()
	f := &domain.Formulation{
		DealID:      d.ID,
		Name:        "Blend",
		Status:      domain.FormulationActive,
		ActivatedAt: &activatedAt,
		ActivatedBy: "alice",
	}
	require.NoError(t, repos.Formulations.Create(ctx, f))
	for _, r := range []struct {
		participant string
		credit      domain.CreditType
		pct         string
	}{
		{"alice", domain.CreditContribution, "65"},
		{"bob", domain.CreditUsage, "30"},
		{"carol", domain.CreditValue, "5"},
	} {
		require.NoError(t, repos.Rules.Create(ctx, &domain.AttributionRule{
			DealID:           d.ID,
			FormulationID:    f.ID,
			ParticipantID:    r.participant,
			CreditType:       r.credit,
			PayoutPercentage: dec(r.pct),
			IsActive:         true,
		}))
	}

	if wrap != nil {
		wrap(&repos)
	}
	metrics := &outcomeCounter{}
	uc, err := settlement.New(repos, locker.NewLocal(), usecase.NewEmitter(repos.Events, nil, zap.NewNop()), metrics, zap.NewNop())
	require.NoError(t, err)
	return &fixture{repos: repos, uc: uc, metrics: metrics, deal: d}
}

func (fx *fixture) contract(t *testing.T, in settlement.ContractInput) *domain.SettlementContract {
	t.Helper()
	in.DealID = fx.deal.ID
	if in.Name == "" {
		in.Name = string(in.TriggerType)
	}
	c, err := fx.uc.CreateContract(context.Background(), in)
	require.NoError(t, err)
	return c
}

func sumPayouts(payouts []domain.SettlementPayout) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total
}

func TestRevenueTriggerDistributesPool(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{
		TriggerType:       domain.TriggerRevenueReceived,
		TriggerConditions: domain.TriggerConditions{MinAmount: ptr(dec("1000"))},
	})
	assert.Equal(t, "USD", c.Currency, "currency defaults to the deal's")
	assert.Equal(t, domain.DistributionProportional, c.DistributionLogic)

	execs, err := fx.uc.HandleTrigger(ctx, domain.TriggerEvent{DealID: fx.deal.ID, Type: domain.TriggerRevenueReceived, Amount: dec("500")})
	require.NoError(t, err)
	assert.Empty(t, execs, "below min_amount")

	execs, err = fx.uc.HandleTrigger(ctx, domain.TriggerEvent{DealID: fx.deal.ID, Type: domain.TriggerRevenueReceived, Amount: dec("10000")})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	exec := execs[0]
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.True(t, exec.TotalAmount.Equal(dec("10000")))
	assert.NotNil(t, exec.ExecutedAt)

	payouts, err := fx.uc.ListPayouts(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	amounts := map[string]string{}
	for _, p := range payouts {
		amounts[p.ParticipantID] = p.Amount.StringFixed(2)
		assert.Equal(t, domain.PayoutPending, p.Status)
		assert.Equal(t, "USD", p.Currency)
	}
	assert.Equal(t, map[string]string{"alice": "6500.00", "bob": "3000.00", "carol": "500.00"}, amounts)

	stored, err := fx.uc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalDistributed.Equal(sumPayouts(payouts)))
	assert.NotNil(t, stored.LastTriggeredAt)
	assert.Equal(t, 1, fx.metrics.outcomes[domain.ExecutionCompleted])
}

func TestUsageThresholdFiresOnceOnCrossing(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	ing := &domain.Ingredient{DealID: fx.deal.ID, Name: "Model", OwnerID: "bob"}
	ing.Normalize()
	require.NoError(t, fx.repos.Ingredients.Create(ctx, ing))
	c := fx.contract(t, settlement.ContractInput{
		TriggerType: domain.TriggerUsageThreshold,
		TriggerConditions: domain.TriggerConditions{
			Threshold:  ptr(dec("1000")),
			UsageType:  "api_call",
			PoolAmount: ptr(dec("1000")),
		},
	})

	ledger := ledgerUC.New(fx.repos, locker.NewLocal(), usecase.NewEmitter(fx.repos.Events, nil, zap.NewNop()), nil, zap.NewNop())
	ledger.Subscribe(fx.uc)
	record := func(id, qty string) {
		_, _, err := ledger.Record(ctx, domain.UsageEvent{
			ID:           id,
			DealID:       fx.deal.ID,
			IngredientID: ing.ID,
			UsageType:    "api_call",
			Quantity:     dec(qty),
		})
		require.NoError(t, err)
	}

	record("u1", "600")
	execs, err := fx.uc.ListExecutions(ctx, repository.ExecutionFilter{ContractID: c.ID})
	require.NoError(t, err)
	assert.Empty(t, execs)

	record("u2", "500")
	record("u2", "500")
	record("u3", "100")
	execs, err = fx.uc.ListExecutions(ctx, repository.ExecutionFilter{ContractID: c.ID})
	require.NoError(t, err)
	require.Len(t, execs, 1, "only the crossing event fires")
	assert.Equal(t, domain.ExecutionCompleted, execs[0].Status)

	payouts, err := fx.uc.ListPayouts(ctx, execs[0].ID)
	require.NoError(t, err)
	assert.True(t, sumPayouts(payouts).Equal(dec("1000")))
}

func TestPayoutFailureWritesNothing(t *testing.T) {
	fx := newFixture(t, func(r *repository.Registry) {
		r.Payouts = &failingPayouts{PayoutRepository: r.Payouts, allow: 2}
	})
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{TriggerType: domain.TriggerInvoicePaid})

	exec, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{Amount: dec("900")})
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeExecution))
	assert.ErrorIs(t, err, errPayoutStore)
	require.NotNil(t, exec)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.FailureReason, errPayoutStore.Error())

	stored, err := fx.uc.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, stored.Status)

	payouts, err := fx.uc.ListPayouts(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, payouts, "no partial payouts survive")

	contract, err := fx.uc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, contract.TotalDistributed.IsZero())
	assert.Nil(t, contract.LastTriggeredAt)
	assert.Equal(t, 1, fx.metrics.outcomes[domain.ExecutionFailed])
}

func TestExecutionFailsWithoutActiveFormulation(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{TriggerType: domain.TriggerRevenueReceived})

	active, err := fx.repos.Formulations.GetActive(ctx, fx.deal.ID)
	require.NoError(t, err)
	require.NoError(t, active.Archive(time.Now(), true))
	require.NoError(t, fx.repos.Formulations.Update(ctx, active))

	exec, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{Amount: dec("100")})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeExecution))
	require.NotNil(t, exec)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.FailureReason, "no active formulation")
}

func TestExpressionConditions(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.uc.CreateContract(ctx, settlement.ContractInput{
		DealID:            fx.deal.ID,
		Name:              "broken",
		TriggerType:       domain.TriggerRevenueReceived,
		TriggerConditions: domain.TriggerConditions{Expression: "event.amount +"},
	})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = fx.uc.CreateContract(ctx, settlement.ContractInput{
		DealID:            fx.deal.ID,
		Name:              "numeric",
		TriggerType:       domain.TriggerRevenueReceived,
		TriggerConditions: domain.TriggerConditions{Expression: "1 + 2"},
	})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "non-boolean expressions are rejected")

	c := fx.contract(t, settlement.ContractInput{
		TriggerType: domain.TriggerMilestoneHit,
		TriggerConditions: domain.TriggerConditions{
			Milestone:  "launch",
			PoolAmount: ptr(dec("300")),
			Expression: `event.attributes.region == "EU"`,
		},
	})

	us := domain.TriggerEvent{DealID: fx.deal.ID, Type: domain.TriggerMilestoneHit, Milestone: "launch", Attributes: map[string]interface{}{"region": "US"}}
	ok, err := fx.uc.Matches(c, us)
	require.NoError(t, err)
	assert.False(t, ok)

	eu := us
	eu.Attributes = map[string]interface{}{"region": "EU"}
	ok, err = fx.uc.Matches(c, eu)
	require.NoError(t, err)
	assert.True(t, ok)

	other := eu
	other.Milestone = "beta"
	ok, err = fx.uc.Matches(c, other)
	require.NoError(t, err)
	assert.False(t, ok, "structured conditions still apply")

	execs, err := fx.uc.HandleTrigger(ctx, eu)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].TotalAmount.Equal(dec("300")))
}

func TestManualApprovalSplitsEqually(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{
		TriggerType:       domain.TriggerManualApproval,
		TriggerConditions: domain.TriggerConditions{PoolAmount: ptr(dec("100"))},
		DistributionLogic: domain.DistributionEqual,
	})

	_, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "approver required")

	exec, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{ApprovedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)

	payouts, err := fx.uc.ListPayouts(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	assert.True(t, sumPayouts(payouts).Equal(dec("100")))
	var amounts []string
	for _, p := range payouts {
		amounts = append(amounts, p.Amount.StringFixed(2))
	}
	assert.ElementsMatch(t, []string{"33.34", "33.33", "33.33"}, amounts)
}

func TestExecuteGuards(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{TriggerType: domain.TriggerRevenueReceived})

	exec, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{Amount: dec("-5")})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Nil(t, exec, "rejected before any execution is recorded")

	_, err = fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{DealID: "elsewhere", Amount: dec("5")})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = fx.uc.Execute(ctx, "missing", domain.TriggerEvent{})
	assert.ErrorIs(t, err, domain.ErrContractNotFound)

	_, err = fx.uc.DeactivateContract(ctx, c.ID)
	require.NoError(t, err)
	_, err = fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{Amount: dec("5")})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))

	execs, err := fx.uc.HandleTrigger(ctx, domain.TriggerEvent{DealID: fx.deal.ID, Type: domain.TriggerRevenueReceived, Amount: dec("5")})
	require.NoError(t, err)
	assert.Empty(t, execs, "inactive contracts never fire")

	_, err = fx.uc.HandleTrigger(ctx, domain.TriggerEvent{DealID: fx.deal.ID, Type: "rain"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestScheduledContracts(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.uc.CreateContract(ctx, settlement.ContractInput{
		DealID:            fx.deal.ID,
		Name:              "bad schedule",
		TriggerType:       domain.TriggerTimeBased,
		TriggerConditions: domain.TriggerConditions{Schedule: "every tuesday", PoolAmount: ptr(dec("10"))},
	})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	c := fx.contract(t, settlement.ContractInput{
		TriggerType:       domain.TriggerTimeBased,
		TriggerConditions: domain.TriggerConditions{Schedule: "0 9 1 * *", PoolAmount: ptr(dec("10"))},
	})
	scheduled, err := fx.uc.ScheduledContracts(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, settlement.ScheduledContract{ID: c.ID, DealID: fx.deal.ID, Schedule: "0 9 1 * *"}, scheduled[0])

	exec, err := fx.uc.RunScheduled(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
}

func TestMarkPayoutPaid(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	c := fx.contract(t, settlement.ContractInput{TriggerType: domain.TriggerRevenueReceived})
	exec, err := fx.uc.Execute(ctx, c.ID, domain.TriggerEvent{Amount: dec("100")})
	require.NoError(t, err)
	payouts, err := fx.uc.ListPayouts(ctx, exec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, payouts)

	_, err = fx.uc.MarkPayoutPaid(ctx, payouts[0].ID, " ")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	paid, err := fx.uc.MarkPayoutPaid(ctx, payouts[0].ID, "wire-001")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPaid, paid.Status)
	assert.Equal(t, "wire-001", paid.PaymentReference)

	_, err = fx.uc.MarkPayoutPaid(ctx, payouts[0].ID, "wire-002")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeState))
}

func TestContractCurrencyFollowsDeal(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	yen := &domain.Deal{Name: "Tokyo", Currency: "JPY", Participants: []string{"alice"}}
	require.NoError(t, fx.repos.Deals.Create(ctx, yen))

	c, err := fx.uc.CreateContract(ctx, settlement.ContractInput{DealID: yen.ID, Name: "yen", TriggerType: domain.TriggerRevenueReceived})
	require.NoError(t, err)
	assert.Equal(t, "JPY", c.Currency)

	c, err = fx.uc.CreateContract(ctx, settlement.ContractInput{DealID: yen.ID, Name: "btc", TriggerType: domain.TriggerRevenueReceived, Currency: " btc"})
	require.NoError(t, err)
	assert.Equal(t, "BTC", c.Currency)
}
