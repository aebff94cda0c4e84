package settlement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

// OnUsageRecorded fires usage_threshold contracts whose cumulative usage
// was crossed by event. The cumulative value already includes event, so
// the value before it is current minus the event quantity.
func (uc *UseCase) OnUsageRecorded(ctx context.Context, event domain.UsageEvent) error {
	contracts, err := uc.contracts.List(ctx, repository.ContractFilter{
		DealID:      event.DealID,
		TriggerType: string(domain.TriggerUsageThreshold),
		ActiveOnly:  true,
	})
	if err != nil {
		return err
	}

	var errs []error
	for i := range contracts {
		c := &contracts[i]
		filter := domain.UsageFilter{
			DealID:       c.DealID,
			IngredientID: c.TriggerConditions.IngredientID,
			UsageType:    c.TriggerConditions.UsageType,
		}
		if !filter.Matches(domain.UsageSummary{DealID: event.DealID, IngredientID: event.IngredientID, UsageType: event.UsageType}) {
			continue
		}
		summaries, err := uc.usage.Summaries(ctx, filter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		current := domain.CumulativeQuantity(summaries, filter)
		previous := current.Sub(event.Quantity)
		trigger := domain.TriggerEvent{
			DealID:        event.DealID,
			Type:          domain.TriggerUsageThreshold,
			Reference:     event.ID,
			OccurredAt:    event.RecordedAt,
			PreviousUsage: &previous,
			CurrentUsage:  &current,
		}
		ok, err := uc.Matches(c, trigger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		uc.logger.Info("usage threshold crossed",
			zap.String("contract_id", c.ID),
			zap.String("usage_id", event.ID),
			zap.String("previous", previous.String()),
			zap.String("current", current.String()))
		if _, err := uc.Execute(ctx, c.ID, trigger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScheduledContract is an active time_based contract and its cron spec.
type ScheduledContract struct {
	ID       string
	DealID   string
	Schedule string
}

// ScheduledContracts lists the active time_based contracts of every deal.
func (uc *UseCase) ScheduledContracts(ctx context.Context) ([]ScheduledContract, error) {
	contracts, err := uc.contracts.List(ctx, repository.ContractFilter{
		TriggerType: string(domain.TriggerTimeBased),
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledContract, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, ScheduledContract{ID: c.ID, DealID: c.DealID, Schedule: c.TriggerConditions.Schedule})
	}
	return out, nil
}

// RunScheduled fires a time_based contract for the current tick.
func (uc *UseCase) RunScheduled(ctx context.Context, contractID string) (*domain.SettlementExecution, error) {
	return uc.Execute(ctx, contractID, domain.TriggerEvent{
		Type:       domain.TriggerTimeBased,
		OccurredAt: uc.now(),
	})
}
