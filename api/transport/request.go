package transport

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type DealRequest struct {
	Name         string   `json:"name"`
	Currency     string   `json:"currency"`
	Participants []string `json:"participants"`
}

type ParticipantRequest struct {
	ParticipantID string `json:"participant_id"`
}

type FormulationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ArchiveRequest struct {
	Reason string `json:"reason"`
}

type VoteRequest struct {
	Approve *bool `json:"approve"`
}

type UsageRequest struct {
	ID           string          `json:"id"`
	IngredientID string          `json:"ingredient_id"`
	UsageType    string          `json:"usage_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostIncurred decimal.Decimal `json:"cost_incurred"`
	RecordedAt   *time.Time      `json:"recorded_at"`
}

// Event converts the request into a usage event of dealID.
func (r UsageRequest) Event(dealID string) domain.UsageEvent {
	ev := domain.UsageEvent{
		ID:           r.ID,
		DealID:       dealID,
		IngredientID: r.IngredientID,
		UsageType:    r.UsageType,
		Quantity:     r.Quantity,
		CostIncurred: r.CostIncurred,
	}
	if r.RecordedAt != nil {
		ev.RecordedAt = r.RecordedAt.UTC()
	}
	return ev
}

type UsageAccepted struct {
	ID       string `json:"id"`
	Buffered bool   `json:"buffered"`
	Recorded bool   `json:"recorded"`
}

type TriggerRequest struct {
	Type       domain.TriggerType     `json:"type"`
	Amount     decimal.Decimal        `json:"amount"`
	Currency   string                 `json:"currency"`
	Milestone  string                 `json:"milestone"`
	Verified   bool                   `json:"verified"`
	Reference  string                 `json:"reference"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Event converts the request into a trigger event of dealID.
func (r TriggerRequest) Event(dealID string) domain.TriggerEvent {
	return domain.TriggerEvent{
		DealID:     dealID,
		Type:       r.Type,
		Amount:     r.Amount,
		Currency:   r.Currency,
		Milestone:  r.Milestone,
		Verified:   r.Verified,
		Reference:  r.Reference,
		Attributes: r.Attributes,
	}
}

type MarkPaidRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type SubmitResponse struct {
	Formulation *domain.Formulation      `json:"formulation"`
	Composition domain.CompositionReport `json:"composition"`
}

type LockStatus struct {
	IngredientID string `json:"ingredient_id"`
	Locked       bool   `json:"locked"`
}

// TriggerResult lists the executions a trigger produced. Errors carries the
// contracts that matched but did not complete.
type TriggerResult struct {
	Executions []domain.SettlementExecution `json:"executions"`
	Errors     []string                     `json:"errors,omitempty"`
}
