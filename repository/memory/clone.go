package memory

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneDeal(d domain.Deal) domain.Deal {
	d.Participants = append([]string(nil), d.Participants...)
	return d
}

func cloneFormulation(f domain.Formulation) domain.Formulation {
	f.Ingredients = append([]domain.FormulationIngredient(nil), f.Ingredients...)
	return f
}

func cloneRule(r domain.AttributionRule) domain.AttributionRule {
	r.MinPayout = cloneDecimal(r.MinPayout)
	r.MaxPayout = cloneDecimal(r.MaxPayout)
	return r
}

func cloneProposal(p domain.ChangeProposal) domain.ChangeProposal {
	p.IngredientID = cloneString(p.IngredientID)
	p.RuleID = cloneString(p.RuleID)
	p.ProposedChanges = cloneRaw(p.ProposedChanges)
	if p.Approvals != nil {
		p.Approvals = p.Approvals.Clone()
	}
	return p
}

func cloneContract(c domain.SettlementContract) domain.SettlementContract {
	tc := c.TriggerConditions
	tc.MinAmount = cloneDecimal(tc.MinAmount)
	tc.Threshold = cloneDecimal(tc.Threshold)
	tc.PoolAmount = cloneDecimal(tc.PoolAmount)
	c.TriggerConditions = tc
	return c
}

func cloneExecution(e domain.SettlementExecution) domain.SettlementExecution {
	e.TriggerEvent = cloneRaw(e.TriggerEvent)
	return e
}

func cloneEvent(e domain.Event) domain.Event {
	e.Payload = cloneRaw(e.Payload)
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}
