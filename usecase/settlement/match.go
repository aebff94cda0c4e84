package settlement

import (
	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

// Matches reports whether ev satisfies the contract's trigger conditions.
// Inactive contracts and events of another type never match. When an
// expression is configured it must hold as well.
func (uc *UseCase) Matches(c *domain.SettlementContract, ev domain.TriggerEvent) (bool, error) {
	if !c.IsActive || ev.Type != c.TriggerType {
		return false, nil
	}
	if ev.DealID != "" && ev.DealID != c.DealID {
		return false, nil
	}
	if !conditionsHold(c, ev) {
		return false, nil
	}
	if c.TriggerConditions.Expression == "" {
		return true, nil
	}
	return uc.expressions.Eval(c.TriggerConditions.Expression, c, ev)
}

func conditionsHold(c *domain.SettlementContract, ev domain.TriggerEvent) bool {
	cond := c.TriggerConditions
	switch c.TriggerType {
	case domain.TriggerRevenueReceived, domain.TriggerInvoicePaid:
		return cond.MinAmount == nil || ev.Amount.GreaterThanOrEqual(*cond.MinAmount)
	case domain.TriggerSavingsVerified:
		if !ev.Verified {
			return false
		}
		return cond.MinAmount == nil || ev.Amount.GreaterThanOrEqual(*cond.MinAmount)
	case domain.TriggerMilestoneHit:
		return ev.Milestone == cond.Milestone
	case domain.TriggerUsageThreshold:
		if cond.Threshold == nil || ev.PreviousUsage == nil || ev.CurrentUsage == nil {
			return false
		}
		return ev.PreviousUsage.LessThan(*cond.Threshold) && cond.Threshold.LessThanOrEqual(*ev.CurrentUsage)
	case domain.TriggerTimeBased:
		return true
	case domain.TriggerManualApproval:
		return ev.ApprovedBy != ""
	}
	return false
}
