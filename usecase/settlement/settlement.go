// Package settlement runs settlement contracts: it matches trigger events,
// calculates payouts and writes them atomically with the execution record.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/payout"
)

type UseCase struct {
	deals        repository.DealRepository
	formulations repository.FormulationRepository
	rules        repository.RuleRepository
	usage        repository.UsageRepository
	contracts    repository.ContractRepository
	executions   repository.ExecutionRepository
	payouts      repository.PayoutRepository
	tx           repository.Transactor
	locker       usecase.Locker
	emitter      *usecase.Emitter
	metrics      usecase.Metrics
	expressions  *expressionEvaluator
	logger       *zap.Logger
	now          func() time.Time
}

func New(repos repository.Registry, locker usecase.Locker, emitter *usecase.Emitter, metrics usecase.Metrics, logger *zap.Logger) (*UseCase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = usecase.NopMetrics{}
	}
	expressions, err := newExpressionEvaluator()
	if err != nil {
		return nil, err
	}
	return &UseCase{
		deals:        repos.Deals,
		formulations: repos.Formulations,
		rules:        repos.Rules,
		usage:        repos.Usage,
		contracts:    repos.Contracts,
		executions:   repos.Executions,
		payouts:      repos.Payouts,
		tx:           repos.Tx,
		locker:       locker,
		emitter:      emitter,
		metrics:      metrics,
		expressions:  expressions,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

type ContractInput struct {
	DealID            string                   `json:"deal_id"`
	Name              string                   `json:"name"`
	TriggerType       domain.TriggerType       `json:"trigger_type"`
	TriggerConditions domain.TriggerConditions `json:"trigger_conditions"`
	DistributionLogic domain.DistributionLogic `json:"distribution_logic"`
	Currency          string                   `json:"currency"`
}

// CreateContract registers an active contract. Currency defaults to the
// deal's currency and distribution logic to proportional.
func (uc *UseCase) CreateContract(ctx context.Context, in ContractInput) (*domain.SettlementContract, error) {
	d, err := uc.deals.Get(ctx, in.DealID)
	if err != nil {
		return nil, err
	}
	c := &domain.SettlementContract{
		DealID:            d.ID,
		Name:              strings.TrimSpace(in.Name),
		TriggerType:       in.TriggerType,
		TriggerConditions: in.TriggerConditions,
		DistributionLogic: in.DistributionLogic,
		Currency:          d.Currency,
		IsActive:          true,
		TotalDistributed:  decimal.Zero,
	}
	if strings.TrimSpace(in.Currency) != "" {
		c.Currency = domain.NormalizeCurrency(in.Currency)
	}
	if c.DistributionLogic == "" {
		c.DistributionLogic = domain.DistributionProportional
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.TriggerType == domain.TriggerTimeBased {
		if _, err := cron.ParseStandard(c.TriggerConditions.Schedule); err != nil {
			return nil, domain.Validation("trigger_conditions.schedule", "%v", err)
		}
	}
	if expr := c.TriggerConditions.Expression; expr != "" {
		if err := uc.expressions.Check(expr); err != nil {
			return nil, err
		}
	}
	if err := uc.contracts.Create(ctx, c); err != nil {
		return nil, err
	}
	uc.logger.Info("settlement contract created",
		zap.String("contract_id", c.ID),
		zap.String("deal_id", c.DealID),
		zap.String("trigger_type", string(c.TriggerType)))
	return c, nil
}

// DeactivateContract stops a contract from firing. Past executions stay.
func (uc *UseCase) DeactivateContract(ctx context.Context, id string) (*domain.SettlementContract, error) {
	var out *domain.SettlementContract
	err := usecase.WithLock(ctx, uc.locker, usecase.ContractKey(id), func() error {
		c, err := uc.contracts.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.IsActive {
			c.IsActive = false
			if err := uc.contracts.Update(ctx, c); err != nil {
				return err
			}
			uc.logger.Info("settlement contract deactivated", zap.String("contract_id", c.ID))
		}
		out = c
		return nil
	})
	return out, err
}

func (uc *UseCase) GetContract(ctx context.Context, id string) (*domain.SettlementContract, error) {
	return uc.contracts.Get(ctx, id)
}

func (uc *UseCase) ListContracts(ctx context.Context, filter repository.ContractFilter) ([]domain.SettlementContract, error) {
	return uc.contracts.List(ctx, filter)
}

// HandleTrigger executes every active contract of the event's deal whose
// conditions the event satisfies. Identical triggers delivered twice run
// twice; deduplication belongs to the caller.
func (uc *UseCase) HandleTrigger(ctx context.Context, ev domain.TriggerEvent) ([]domain.SettlementExecution, error) {
	if ev.DealID == "" {
		return nil, domain.Validation("deal_id", "must not be empty")
	}
	if !ev.Type.Valid() {
		return nil, domain.Validation("type", "unknown trigger type %q", ev.Type)
	}
	contracts, err := uc.contracts.List(ctx, repository.ContractFilter{
		DealID:      ev.DealID,
		TriggerType: string(ev.Type),
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, err
	}

	var (
		out  []domain.SettlementExecution
		errs []error
	)
	for i := range contracts {
		c := &contracts[i]
		ok, err := uc.Matches(c, ev)
		if err != nil {
			uc.logger.Warn("trigger expression failed",
				zap.String("contract_id", c.ID),
				zap.Error(err))
			errs = append(errs, domain.Validation("trigger_conditions.expression", "contract %s: %v", c.ID, err))
			continue
		}
		if !ok {
			continue
		}
		exec, err := uc.Execute(ctx, c.ID, ev)
		if exec != nil {
			out = append(out, *exec)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

// Execute runs one contract for ev. The execution moves pending, processing,
// then completed with all payouts written in one transaction, or failed with
// no payouts at all. A failed run returns the execution and an
// ExecutionFailure wrapping the cause.
func (uc *UseCase) Execute(ctx context.Context, contractID string, ev domain.TriggerEvent) (*domain.SettlementExecution, error) {
	var (
		out    *domain.SettlementExecution
		runErr error
	)
	err := usecase.WithLock(ctx, uc.locker, usecase.ContractKey(contractID), func() error {
		c, err := uc.contracts.Get(ctx, contractID)
		if err != nil {
			return err
		}
		if !c.IsActive {
			return domain.StateErr("contract", "contract %s is inactive", c.ID)
		}
		if ev.DealID == "" {
			ev.DealID = c.DealID
		}
		if ev.DealID != c.DealID {
			return domain.Validation("deal_id", "event for deal %s cannot fire contract of deal %s", ev.DealID, c.DealID)
		}
		if ev.Type == "" {
			ev.Type = c.TriggerType
		}
		if c.TriggerType == domain.TriggerManualApproval && strings.TrimSpace(ev.ApprovedBy) == "" {
			return domain.Validation("approved_by", "manual approval contracts need an approver")
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = uc.now()
		}
		pool, err := poolFor(c, ev)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			return domain.WrapError(domain.ErrCodeInvalid, "trigger event is not serializable", err)
		}
		exec := &domain.SettlementExecution{
			ContractID:   c.ID,
			DealID:       c.DealID,
			TriggerEvent: payload,
			TotalAmount:  pool,
			Currency:     c.Currency,
			Status:       domain.ExecutionPending,
		}
		if err := uc.executions.Create(ctx, exec); err != nil {
			return err
		}
		out = exec
		runErr = uc.run(ctx, c, exec)
		return nil
	})
	if err != nil {
		return out, err
	}
	return out, runErr
}

func poolFor(c *domain.SettlementContract, ev domain.TriggerEvent) (decimal.Decimal, error) {
	if c.TriggerType.IsMonetary() {
		if ev.Amount.IsNegative() {
			return decimal.Zero, domain.Validation("amount", "must not be negative")
		}
		return ev.Amount, nil
	}
	if c.TriggerConditions.PoolAmount == nil {
		return decimal.Zero, domain.Calculation("contract %s has no pool_amount", c.ID)
	}
	return *c.TriggerConditions.PoolAmount, nil
}

func (uc *UseCase) run(ctx context.Context, c *domain.SettlementContract, exec *domain.SettlementExecution) error {
	if err := exec.Transition(domain.ExecutionProcessing, uc.now()); err != nil {
		return err
	}
	if err := uc.executions.Update(ctx, exec); err != nil {
		return err
	}
	processing := *exec

	calcs, err := uc.calculate(ctx, c, exec.TotalAmount)
	if err != nil {
		return uc.fail(ctx, &processing, err)
	}

	var (
		distributed = decimal.Zero
		payouts     []domain.SettlementPayout
		events      []domain.Event
	)
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, calc := range calcs {
			p := &domain.SettlementPayout{
				ExecutionID:           exec.ID,
				ParticipantID:         calc.ParticipantID,
				Amount:                calc.CalculatedPayout,
				Currency:              exec.Currency,
				AttributionPercentage: calc.AttributionPercentage,
				MinApplied:            calc.MinApplied,
				MaxApplied:            calc.MaxApplied,
				Status:                domain.PayoutPending,
			}
			if err := uc.payouts.Create(ctx, p); err != nil {
				return err
			}
			payouts = append(payouts, *p)
			distributed = distributed.Add(p.Amount)
		}

		now := uc.now()
		if err := exec.Transition(domain.ExecutionCompleted, now); err != nil {
			return err
		}
		if err := uc.executions.Update(ctx, exec); err != nil {
			return err
		}
		c.TotalDistributed = c.TotalDistributed.Add(distributed)
		c.LastTriggeredAt = &now
		if err := uc.contracts.Update(ctx, c); err != nil {
			return err
		}
		events = append(events, domain.NewEvent(domain.KindExecution, exec.ID, domain.EventExecutionCompleted, c.Version, map[string]interface{}{
			"execution":   exec,
			"payouts":     payouts,
			"distributed": distributed,
		}))
		return uc.emitter.Record(ctx, events...)
	})
	if err != nil {
		*exec = processing
		return uc.fail(ctx, exec, err)
	}

	uc.emitter.Publish(ctx, events...)
	uc.metrics.ExecutionFinished(exec.Status, distributed)
	uc.logger.Info("settlement execution completed",
		zap.String("execution_id", exec.ID),
		zap.String("contract_id", c.ID),
		zap.String("deal_id", c.DealID),
		zap.Int("payouts", len(payouts)),
		zap.String("distributed", distributed.String()),
		zap.String("currency", exec.Currency))
	return nil
}

func (uc *UseCase) calculate(ctx context.Context, c *domain.SettlementContract, pool decimal.Decimal) ([]domain.PayoutCalculation, error) {
	switch c.DistributionLogic {
	case domain.DistributionEqual:
		d, err := uc.deals.Get(ctx, c.DealID)
		if err != nil {
			return nil, err
		}
		return payout.Equal(pool, d.Participants, c.Currency)
	default:
		f, err := uc.formulations.GetActive(ctx, c.DealID)
		if err != nil {
			if errors.Is(err, domain.ErrNoActiveFormulation) {
				return nil, domain.Calculation("deal %s has no active formulation to attribute %s", c.DealID, pool)
			}
			return nil, err
		}
		rules, err := uc.rules.List(ctx, repository.RuleFilter{FormulationID: f.ID, ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		return payout.Calculate(pool, rules, c.Currency)
	}
}

// fail persists the failed state with its reason and wraps cause.
func (uc *UseCase) fail(ctx context.Context, exec *domain.SettlementExecution, cause error) error {
	if err := exec.Transition(domain.ExecutionFailed, uc.now()); err != nil {
		return domain.ExecutionFailure(exec.ID, errors.Join(cause, err))
	}
	exec.FailureReason = cause.Error()
	event := domain.NewEvent(domain.KindExecution, exec.ID, domain.EventExecutionFailed, 0, exec)
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.executions.Update(ctx, exec); err != nil {
			return err
		}
		return uc.emitter.Record(ctx, event)
	})
	if err != nil {
		uc.logger.Error("failed to persist execution failure",
			zap.String("execution_id", exec.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	} else {
		uc.emitter.Publish(ctx, event)
	}
	uc.metrics.ExecutionFinished(exec.Status, decimal.Zero)
	uc.logger.Warn("settlement execution failed",
		zap.String("execution_id", exec.ID),
		zap.String("contract_id", exec.ContractID),
		zap.Error(cause))
	return domain.ExecutionFailure(exec.ID, cause)
}

func (uc *UseCase) GetExecution(ctx context.Context, id string) (*domain.SettlementExecution, error) {
	return uc.executions.Get(ctx, id)
}

func (uc *UseCase) ListExecutions(ctx context.Context, filter repository.ExecutionFilter) ([]domain.SettlementExecution, error) {
	return uc.executions.List(ctx, filter)
}

func (uc *UseCase) ListPayouts(ctx context.Context, executionID string) ([]domain.SettlementPayout, error) {
	if _, err := uc.executions.Get(ctx, executionID); err != nil {
		return nil, err
	}
	return uc.payouts.ListByExecution(ctx, executionID)
}

func (uc *UseCase) GetPayout(ctx context.Context, id string) (*domain.SettlementPayout, error) {
	return uc.payouts.Get(ctx, id)
}

// MarkPayoutPaid records the external payment reference of a payout.
func (uc *UseCase) MarkPayoutPaid(ctx context.Context, payoutID, reference string) (*domain.SettlementPayout, error) {
	p, err := uc.payouts.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := p.MarkPaid(reference, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.payouts.Update(ctx, p); err != nil {
		return nil, err
	}
	uc.logger.Info("payout marked paid",
		zap.String("payout_id", p.ID),
		zap.String("execution_id", p.ExecutionID),
		zap.String("payment_reference", p.PaymentReference))
	return p, nil
}
